package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/cognicore/ifice/pkg/ifice"
	"github.com/cognicore/ifice/pkg/ifice/analytics"
)

const batch = `{"name":"青岛啤酒股份有限公司","industry":"啤酒制造","address":"山东省青岛市市南区"}
{"name":"青岛啤酒(黄岛)有限公司","industry":"啤酒制造","address":"山东省青岛市黄岛区"}
{"name":"某某有限公司"}
`

func decodeLines(t *testing.T, out *bytes.Buffer) []ifice.FactoryIdentifier {
	t.Helper()
	var ids []ifice.FactoryIdentifier
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		var fi ifice.FactoryIdentifier
		if err := json.Unmarshal(sc.Bytes(), &fi); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		ids = append(ids, fi)
	}
	return ids
}

func TestRunBatch(t *testing.T) {
	var out bytes.Buffer
	opts := options{dbPath: filepath.Join(t.TempDir(), "ifice.db")}
	if err := run(context.Background(), opts, zap.NewNop(), strings.NewReader(batch), &out, io.Discard); err != nil {
		t.Fatalf("run: %v", err)
	}

	ids := decodeLines(t, &out)
	if len(ids) != 3 {
		t.Fatalf("expected 3 identifiers, got %d", len(ids))
	}
	if ids[0].SequenceNumber != 1 || ids[1].SequenceNumber != 2 {
		t.Errorf("expected sequences 1 and 2 in one scope, got %d and %d", ids[0].SequenceNumber, ids[1].SequenceNumber)
	}
	if !ids[2].NeedsConfirmation {
		t.Errorf("expected %s to need confirmation", ids[2].CompositeID)
	}
}

func TestRunReportMatchesIssued(t *testing.T) {
	var out, report bytes.Buffer
	opts := options{report: true}
	if err := run(context.Background(), opts, zap.NewNop(), strings.NewReader(batch), &out, &report); err != nil {
		t.Fatalf("run: %v", err)
	}

	ids := decodeLines(t, &out)
	var r analytics.Report
	if err := json.Unmarshal(report.Bytes(), &r); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	var flagged int64
	for _, fi := range ids {
		if fi.NeedsConfirmation {
			flagged++
		}
	}
	if r.Total != int64(len(ids)) || r.NeedsReview != flagged {
		t.Errorf("report %d/%d does not match issued %d/%d", r.Total, r.NeedsReview, len(ids), flagged)
	}
}

func TestRunPersistsCounters(t *testing.T) {
	opts := options{dbPath: filepath.Join(t.TempDir(), "ifice.db")}
	one := `{"name":"青岛啤酒股份有限公司","address":"山东省青岛市市南区"}`

	for want := int64(1); want <= 2; want++ {
		var out bytes.Buffer
		if err := run(context.Background(), opts, zap.NewNop(), strings.NewReader(one), &out, io.Discard); err != nil {
			t.Fatalf("run: %v", err)
		}
		ids := decodeLines(t, &out)
		if len(ids) != 1 || ids[0].SequenceNumber != want {
			t.Fatalf("run %d: got %+v", want, ids)
		}
	}
}

func TestRunDryRun(t *testing.T) {
	var out bytes.Buffer
	opts := options{dryRun: true}
	if err := run(context.Background(), opts, zap.NewNop(), strings.NewReader(batch), &out, io.Discard); err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 classifications, got %d", len(lines))
	}
	var c ifice.Classification
	if err := json.Unmarshal([]byte(lines[0]), &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Industry.Code != "BEV" || c.Region.Code != "SD" {
		t.Errorf("expected BEV/SD, got %s/%s", c.Industry.Code, c.Region.Code)
	}
}

func TestRunRejectsBadRecord(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), options{}, zap.NewNop(), strings.NewReader(`{"name":""}`), &out, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "record 1") {
		t.Fatalf("expected record 1 error, got %v", err)
	}
}

func TestBuildEngineMissingConfig(t *testing.T) {
	_, _, err := buildEngine(context.Background(), options{configPath: "nonexistent.yaml"}, zap.NewNop())
	if err == nil {
		t.Fatal("buildEngine should fail with a missing engine config")
	}
}

func TestRunReport(t *testing.T) {
	var out, report bytes.Buffer
	opts := options{dryRun: true, report: true}
	if err := run(context.Background(), opts, zap.NewNop(), strings.NewReader(batch), &out, &report); err != nil {
		t.Fatalf("run: %v", err)
	}

	var r analytics.Report
	if err := json.Unmarshal(report.Bytes(), &r); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if r.Total != 3 || r.IndustryDefaulted != 1 {
		t.Errorf("unexpected report: %+v", r)
	}
}

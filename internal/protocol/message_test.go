package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRequestTypeJSONRoundTrip(t *testing.T) {
	cases := []RequestType{
		ReqPing, ReqExecBatch, ReqPrepareForMaintenance,
		ReqCloseDatabase, ReqReopenDatabase, ReqShutdown, ReqStatus,
	}

	for _, rt := range cases {
		b, err := json.Marshal(rt)
		if err != nil {
			t.Fatalf("marshal %v: %v", rt, err)
		}

		var got RequestType
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("unmarshal %v: %v", rt, err)
		}
		if got != rt {
			t.Fatalf("round trip mismatch: got %v want %v", got, rt)
		}
	}
}

func TestRequestTypeUnmarshalUnknown(t *testing.T) {
	var rt RequestType
	if err := json.Unmarshal([]byte(`"SomethingElse"`), &rt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rt != ReqUnknown {
		t.Fatalf("expected ReqUnknown, got %v", rt)
	}
}

func TestRequestEnvelopeFieldsSurviveJSON(t *testing.T) {
	req := NewExecBatchRequest("d/t.db", []Statement{
		{SQL: "INSERT INTO t VALUES(?)", Params: []interface{}{float64(1)}},
	}, TxAtomic)

	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Request
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Type != ReqExecBatch || got.Db != "d/t.db" || got.Tx != TxAtomic {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Stmts) != 1 || got.Stmts[0].SQL != "INSERT INTO t VALUES(?)" {
		t.Fatalf("unexpected statements: %+v", got.Stmts)
	}
}

func TestIsWorkerScoped(t *testing.T) {
	workerScoped := []RequestType{ReqExecBatch, ReqPrepareForMaintenance, ReqCloseDatabase, ReqReopenDatabase}
	for _, rt := range workerScoped {
		if !rt.IsWorkerScoped() {
			t.Fatalf("%v should be worker-scoped", rt)
		}
	}

	routerScoped := []RequestType{ReqPing, ReqShutdown, ReqStatus, ReqUnknown}
	for _, rt := range routerScoped {
		if rt.IsWorkerScoped() {
			t.Fatalf("%v should not be worker-scoped", rt)
		}
	}
}

func TestStatementValidate(t *testing.T) {
	if err := (Statement{SQL: ""}).Validate(); err == nil {
		t.Fatal("expected error for empty sql")
	}

	tooManyParams := make([]interface{}, MaxStatementParams+1)
	if err := (Statement{SQL: "SELECT 1", Params: tooManyParams}).Validate(); err == nil {
		t.Fatal("expected error for too many params")
	}

	if err := (Statement{SQL: "SELECT 1"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewErrorResponseCarriesCode(t *testing.T) {
	resp := NewErrorResponse(CodeDatabaseClosed, errors.New("db is closed"))
	if resp.Status != "error" || resp.Code != CodeDatabaseClosed || resp.Error != "db is closed" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCodedErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	ce := NewCodedError(CodeIoError, cause)
	if !errors.Is(ce, cause) {
		t.Fatal("expected CodedError to unwrap to its cause")
	}
	if ce.Code != CodeIoError {
		t.Fatalf("unexpected code: %v", ce.Code)
	}
}

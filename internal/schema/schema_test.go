package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

func validRow() domain.Row {
	return domain.Row{
		domain.ColPostingDate:     "2025-04-02",
		domain.ColTransactionDate: "04/01/2025",
		domain.ColIdentityTag:     " ABC123 ",
		domain.ColAgency:          "NJTP",
		domain.ColExitTime:        "14:32:05",
		domain.ColExitPlaza:       "11A",
		domain.ColAmount:          "$1,234.50",
	}
}

func tableOf(rows ...domain.Row) *domain.Table {
	return &domain.Table{
		Columns: append([]string(nil), domain.RequiredColumns...),
		Rows:    rows,
	}
}

func TestValidate(t *testing.T) {
	t.Run("MissingColumnsListsAll", func(t *testing.T) {
		table := &domain.Table{
			Columns: []string{domain.ColPostingDate, domain.ColTransactionDate, domain.ColIdentityTag, domain.ColExitTime},
		}

		err := Validate(table)

		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if vErr.Kind != domain.KindMissingColumns {
			t.Fatalf("expected missing_columns, got %s", vErr.Kind)
		}
		want := []string{domain.ColAgency, domain.ColExitPlaza, domain.ColAmount}
		if len(vErr.Columns) != len(want) {
			t.Fatalf("expected columns %v, got %v", want, vErr.Columns)
		}
		for i := range want {
			if vErr.Columns[i] != want[i] {
				t.Errorf("column %d: expected %s, got %s", i, want[i], vErr.Columns[i])
			}
		}
		if vErr.Error() != "missing required columns: agency, exit_plaza, amount" {
			t.Errorf("unexpected message %q", vErr.Error())
		}
	})

	t.Run("MissingAmount", func(t *testing.T) {
		table := tableOf(validRow())
		table.Columns = table.Columns[:len(table.Columns)-1]

		err := Validate(table)

		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) || vErr.Kind != domain.KindMissingColumns {
			t.Fatalf("expected missing_columns, got %v", err)
		}
		if len(vErr.Columns) != 1 || vErr.Columns[0] != domain.ColAmount {
			t.Errorf("expected [amount], got %v", vErr.Columns)
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		err := Validate(tableOf())

		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) || vErr.Kind != domain.KindEmptyBatch {
			t.Fatalf("expected empty_batch, got %v", err)
		}
	})

	t.Run("MissingColumnsBeforeEmpty", func(t *testing.T) {
		err := Validate(&domain.Table{Columns: []string{domain.ColAmount}})

		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) || vErr.Kind != domain.KindMissingColumns {
			t.Fatalf("expected missing_columns, got %v", err)
		}
	})

	t.Run("NilTable", func(t *testing.T) {
		err := Validate(nil)

		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) || len(vErr.Columns) != len(domain.RequiredColumns) {
			t.Fatalf("expected every column missing, got %v", err)
		}
	})

	tests := []struct {
		name   string
		column string
		value  string
	}{
		{"BadPostingDate", domain.ColPostingDate, "not-a-date"},
		{"BadTransactionDate", domain.ColTransactionDate, "13/45/2025"},
		{"BadAmount", domain.ColAmount, "twelve"},
		{"EmptyAmount", domain.ColAmount, ""},
		{"NaNAmount", domain.ColAmount, "NaN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := validRow()
			bad[tt.column] = tt.value

			err := Validate(tableOf(validRow(), bad))

			var vErr *domain.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Kind != domain.KindTypeError {
				t.Errorf("expected type_error, got %s", vErr.Kind)
			}
			if vErr.Column != tt.column {
				t.Errorf("expected column %s, got %s", tt.column, vErr.Column)
			}
			if vErr.Row != 2 {
				t.Errorf("expected row 2, got %d", vErr.Row)
			}
		})
	}

	t.Run("Valid", func(t *testing.T) {
		if err := Validate(tableOf(validRow(), validRow())); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestDecode(t *testing.T) {
	records, err := Decode(tableOf(validRow()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	r := records[0]
	if r.Amount != 1234.50 {
		t.Errorf("expected amount 1234.50, got %f", r.Amount)
	}
	if r.IdentityTag != "ABC123" {
		t.Errorf("expected trimmed identity, got %q", r.IdentityTag)
	}
	want := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	if !r.TransactionDate.Equal(want) {
		t.Errorf("expected transaction date %v, got %v", want, r.TransactionDate)
	}
	if r.RiskScore != 0 || r.ID != "" {
		t.Error("derived fields should be unset after decode")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"12.5", 12.5},
		{"-10", -10},
		{"$3.00", 3},
		{"-$3.00", -3},
		{"(4.25)", -4.25},
		{"1,000", 1000},
		{" 7 ", 7},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if err != nil {
			t.Errorf("ParseAmount(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAmount(%q) = %f, want %f", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "abc", "Inf", "1.2.3"} {
		if _, err := ParseAmount(bad); err == nil {
			t.Errorf("ParseAmount(%q): expected error", bad)
		}
	}
}

func TestParseDate(t *testing.T) {
	inputs := []string{"2025-04-01", "04/01/2025", "4/1/2025", "2025/04/01", "2025-04-01 08:15:00", "2025-04-01T08:15:00Z"}
	want := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	for _, in := range inputs {
		got, err := ParseDate(in)
		if err != nil {
			t.Errorf("ParseDate(%q): unexpected error: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}
}

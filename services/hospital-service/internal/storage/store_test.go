package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
)

type call struct {
	sql  string
	args []any
}

// recorder is a db.Querier that logs statements and replays canned results.
type recorder struct {
	calls []call
	rows  [][]any
	row   []any
	err   error
}

func (r *recorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.calls = append(r.calls, call{sql, args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *recorder) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	r.calls = append(r.calls, call{sql, args})
	return &fakeRows{data: r.rows, pos: -1}, nil
}

func (r *recorder) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	r.calls = append(r.calls, call{sql, args})
	if r.err != nil {
		return fakeRow{err: r.err}
	}
	return fakeRow{vals: r.row}
}

func assign(dest []any, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: %d targets for %d values", len(dest), len(vals))
	}
	for i, v := range vals {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.vals)
}

type fakeRows struct {
	data [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool                                   { r.pos++; return r.pos < len(r.data) }
func (r *fakeRows) Scan(dest ...any) error                       { return assign(dest, r.data[r.pos]) }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.pos], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

var placeholder = regexp.MustCompile(`\$(\d+)`)

func TestAppointmentFilterQuery(t *testing.T) {
	day := scheduling.MustDate("2026-03-10")
	cases := []struct {
		name  string
		in    AppointmentFilter
		conds []string
		args  []any
		limit bool
	}{
		{name: "empty"},
		{
			name:  "manager",
			in:    AppointmentFilter{ManagerID: 3},
			conds: []string{"a.manager_user_id = $1"},
			args:  []any{int64(3)},
		},
		{
			name:  "doctor day",
			in:    AppointmentFilter{DoctorID: 10, Date: day},
			conds: []string{"a.doctor_id = $1", "a.appointment_date = $2"},
			args:  []any{int64(10), day.Time()},
		},
		{
			name: "everything",
			in: AppointmentFilter{ManagerID: 3, DoctorID: 10, PatientID: 4, Date: day,
				ExcludeStatus: model.StatusCancelled, Limit: 20},
			conds: []string{"a.manager_user_id = $1", "a.doctor_id = $2", "a.patient_user_id = $3",
				"a.appointment_date = $4", "a.status <> $5"},
			args:  []any{int64(3), int64(10), int64(4), day.Time(), model.StatusCancelled, 20},
			limit: true,
		},
		{
			name:  "limit only",
			in:    AppointmentFilter{Limit: 5},
			args:  []any{5},
			limit: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sql, args := tc.in.query()
			if !strings.HasPrefix(sql, appointmentSelect) {
				t.Fatalf("unexpected select: %q", sql)
			}
			rest := strings.TrimPrefix(sql, appointmentSelect)
			if len(tc.conds) > 0 {
				want := " WHERE " + strings.Join(tc.conds, " AND ") + " ORDER BY"
				if !strings.HasPrefix(rest, want) {
					t.Fatalf("where clause: got %q want prefix %q", rest, want)
				}
			} else if strings.Contains(rest, "WHERE") {
				t.Fatalf("unexpected WHERE: %q", rest)
			}
			if !strings.Contains(rest, "ORDER BY a.appointment_date, a.appointment_time, a.id") {
				t.Fatalf("missing order: %q", rest)
			}
			if got := strings.HasSuffix(rest, fmt.Sprintf(" LIMIT $%d", len(args))); got != tc.limit {
				t.Fatalf("limit clause = %v in %q", got, rest)
			}
			if !reflect.DeepEqual(args, tc.args) && !(len(args) == 0 && len(tc.args) == 0) {
				t.Fatalf("args: got %#v want %#v", args, tc.args)
			}
			// every placeholder must be bound, numbered 1..n
			var seen []int
			for _, m := range placeholder.FindAllStringSubmatch(rest, -1) {
				var n int
				fmt.Sscan(m[1], &n)
				seen = append(seen, n)
			}
			for i, n := range seen {
				if n != i+1 {
					t.Fatalf("placeholders out of order: %v", seen)
				}
			}
			if len(seen) != len(args) {
				t.Fatalf("%d placeholders for %d args", len(seen), len(args))
			}
		})
	}
}

func TestActiveBookingsScansAndBinds(t *testing.T) {
	day := scheduling.MustDate("2026-03-10")
	q := &recorder{rows: [][]any{{int64(7), "09:00"}, {int64(9), "10:30"}}}
	s := &Store{q: q}

	got, err := s.ActiveBookings(context.Background(), 10, day, 9)
	if err != nil {
		t.Fatalf("active bookings: %v", err)
	}
	want := []scheduling.Booking{
		{AppointmentID: 7, Start: scheduling.MustClock("09:00")},
		{AppointmentID: 9, Start: scheduling.MustClock("10:30")},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("bookings: got %+v want %+v", got, want)
	}
	if len(q.calls) != 1 {
		t.Fatalf("expected one query, got %d", len(q.calls))
	}
	c := q.calls[0]
	if !strings.Contains(c.sql, "status = ANY($3)") || !strings.Contains(c.sql, "id <> $4") {
		t.Fatalf("unexpected sql: %s", c.sql)
	}
	if len(c.args) != 4 || c.args[0] != int64(10) || c.args[1] != day.Time() || c.args[3] != int64(9) {
		t.Fatalf("unexpected args: %#v", c.args)
	}
	if st := c.args[2].([]string); !slices.Equal(st, []string{"scheduled", "completed"}) {
		t.Fatalf("active statuses: %v", st)
	}
}

func TestActiveBookingsRejectsBadClock(t *testing.T) {
	q := &recorder{rows: [][]any{{int64(7), "9am"}}}
	s := &Store{q: q}
	if _, err := s.ActiveBookings(context.Background(), 10, scheduling.MustDate("2026-03-10"), 0); err == nil {
		t.Fatalf("expected clock parse error")
	}
}

func TestLockIdempotencyKey(t *testing.T) {
	done := int64(42)
	cases := []struct {
		name  string
		row   []any
		err   error
		id    int64
		found bool
		fail  error
	}{
		{name: "fresh key", row: []any{(*int64)(nil)}},
		{name: "replay", row: []any{&done}, id: 42, found: true},
		{name: "row vanished", err: pgx.ErrNoRows, fail: ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := &recorder{row: tc.row, err: tc.err}
			s := &Store{q: q}
			id, found, err := s.LockIdempotencyKey(context.Background(), 3, "k-1")
			if tc.fail != nil {
				if !errors.Is(err, tc.fail) {
					t.Fatalf("expected %v, got %v", tc.fail, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("lock: %v", err)
			}
			if id != tc.id || found != tc.found {
				t.Fatalf("got (%d, %v) want (%d, %v)", id, found, tc.id, tc.found)
			}
			if len(q.calls) != 2 {
				t.Fatalf("expected insert then select, got %d calls", len(q.calls))
			}
			if !strings.Contains(q.calls[0].sql, "ON CONFLICT (manager_user_id, idempotency_key) DO NOTHING") {
				t.Fatalf("claim must not fail on replay: %s", q.calls[0].sql)
			}
			if !strings.Contains(q.calls[1].sql, "FOR UPDATE") {
				t.Fatalf("select must lock the key row: %s", q.calls[1].sql)
			}
			for _, c := range q.calls {
				if !reflect.DeepEqual(c.args, []any{int64(3), "k-1"}) {
					t.Fatalf("unexpected args: %#v", c.args)
				}
			}
		})
	}
}

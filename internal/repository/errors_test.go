package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsDuplicate(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '7-3' for key 'uq_registration'"}
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"mysql 1062", dup, true},
		{"wrapped 1062", fmt.Errorf("insert registration: %w", dup), true},
		{"other mysql error", &mysql.MySQLError{Number: 1452, Message: "foreign key constraint fails"}, false},
		{"plain error", errors.New("connection refused"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := isDuplicate(tc.err); got != tc.want {
			t.Errorf("%s: isDuplicate = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPlaceholders(t *testing.T) {
	for n, want := range map[int]string{0: "", 1: "?", 3: "?,?,?"} {
		if got := placeholders(n); got != want {
			t.Errorf("placeholders(%d) = %q, want %q", n, got, want)
		}
	}
}

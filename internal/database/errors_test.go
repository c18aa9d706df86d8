package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestUniqueViolationField(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantField string
		wantOK    bool
	}{
		{
			name:      "email",
			err:       &pq.Error{Code: "23505", Table: "users", Constraint: "users_email_key"},
			wantField: "email",
			wantOK:    true,
		},
		{
			name:      "firebase uid is camelCased",
			err:       &pq.Error{Code: "23505", Table: "users", Constraint: "users_firebase_uid_key"},
			wantField: "firebaseUid",
			wantOK:    true,
		},
		{
			name:      "wrapped error",
			err:       fmt.Errorf("failed to create user: %w", &pq.Error{Code: "23505", Table: "users", Constraint: "users_username_key"}),
			wantField: "username",
			wantOK:    true,
		},
		{
			name:   "other pq error",
			err:    &pq.Error{Code: "23503", Constraint: "wardrobes_user_id_fkey"},
			wantOK: false,
		},
		{
			name:   "plain error",
			err:    errors.New("boom"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, ok := UniqueViolationField(tt.err)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if field != tt.wantField {
				t.Errorf("field = %q, want %q", field, tt.wantField)
			}
		})
	}
}

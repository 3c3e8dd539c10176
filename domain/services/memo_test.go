package services

import (
	"testing"

	"ledgerbot/domain/entities"

	"github.com/stretchr/testify/assert"
)

func TestParseMemo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		memo   string
		want   entities.AccountID
		wantOK bool
	}{
		{name: "user id", memo: "555", want: 555, wantOK: true},
		{name: "padded", memo: "  555\n", want: 555, wantOK: true},
		{name: "empty", memo: ""},
		{name: "zero", memo: "0"},
		{name: "negative targets system account", memo: "-2"},
		{name: "text", memo: "for bob"},
		{name: "mixed", memo: "555abc"},
		{name: "overflow", memo: "99999999999999999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := ParseMemo(tt.memo)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

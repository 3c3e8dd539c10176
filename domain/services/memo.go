package services

import (
	"strconv"
	"strings"

	"ledgerbot/domain/entities"
)

// ParseMemo extracts a user account id from a deposit memo.
// Only a bare positive decimal integer routes a deposit; anything else is unmatched.
func ParseMemo(memo string) (entities.AccountID, bool) {
	trimmed := strings.TrimSpace(memo)
	if trimmed == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return entities.AccountID(id), true
}

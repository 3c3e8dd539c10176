package database

import (
	"net/url"
	"strings"
)

// ConstructDatabaseURL points baseURL at databaseName, replacing any database
// already in the path. Query parameters are kept and sslmode=disable is added
// when no sslmode is given. An unparseable baseURL is returned unchanged.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return baseURL
	}

	u.Path = "/" + databaseName
	u.RawPath = ""

	if u.Query().Get("sslmode") == "" {
		if u.RawQuery == "" {
			u.RawQuery = "sslmode=disable"
		} else {
			u.RawQuery += "&sslmode=disable"
		}
	}

	return u.String()
}

package util

import (
	"strings"

	"github.com/keyturn/go-keyturn-server/types"
)

// AliasDomain returns the namespace part of an alias (everything after
// the last @), lowercased. An alias without a name or a namespace is
// rejected as bad input.
func AliasDomain(alias string) (string, error) {
	at := strings.LastIndex(alias, "@")
	if at <= 0 || at == len(alias)-1 {
		return "", types.ErrBadRequest
	}
	return strings.ToLower(alias[at+1:]), nil
}

package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWith(t *testing.T) {
	vars := map[string]string{"DB_USER": "approver", "DB_PASS": "s3cret", "A": "1"}
	lookup := func(name string) string { return vars[name] }
	testCases := []struct {
		name   string
		input  string
		expect string
	}{
		{name: "plain", input: "postgres://localhost/approvals", expect: "postgres://localhost/approvals"},
		{name: "dsn", input: "postgres://${env.DB_USER}:${env.DB_PASS}@db/approvals", expect: "postgres://approver:s3cret@db/approvals"},
		{name: "repeated", input: "${env.A}-${env.A}", expect: "1-1"},
		{name: "unset", input: "x=${env.MISSING}.", expect: "x=."},
		{name: "empty name", input: "a ${env.} b", expect: "a  b"},
		{name: "unterminated", input: "start ${env.A and ${env.B", expect: "start ${env.A and ${env.B"},
		{name: "invalid name keeps prefix", input: "${env.A-B} ${env.A}", expect: "${env.A-B} 1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, With(tc.input, lookup))
		})
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("ADMINFLOW_EXPAND_TEST", "value")
	assert.Equal(t, "key: value", Env("key: ${env.ADMINFLOW_EXPAND_TEST}"))
}

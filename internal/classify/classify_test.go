package classify

import "testing"

func TestIsRetriable(t *testing.T) {
	cases := []struct {
		name    string
		code    int
		message string
		want    bool
	}{
		{"ordinary timeout is retriable", -32000, "upstream timeout", true},
		{"code 3 is non-retriable", 3, "execution reverted", false},
		{"code -32015 is non-retriable", -32015, "anything", false},
		{"code -32010 is non-retriable", -32010, "anything", false},
		{"code 32601 (no leading minus) is non-retriable", 32601, "anything", false},
		{"code -32601 (standard method-not-found) is retriable", -32601, "method not found", true},
		{"tx already in mempool message is non-retriable", 0, ": tx already in mempool", false},
		{"nonce too low prefix is non-retriable", 0, "nonce too low: account nonce 5", false},
		{"execution reverted prefix is non-retriable", 0, "rpc error: code = Unknown desc = execution reverted: foo", false},
		{"unrelated message is retriable", 0, "connection reset by peer", true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := IsRetriable(c.code, c.message)
			if got != c.want {
				t.Errorf("IsRetriable(%d, %q) = %v, want %v", c.code, c.message, got, c.want)
			}
		})
	}
}

func TestIsRetriablePurity(t *testing.T) {
	// Same (code, message) pair must always classify identically regardless
	// of call order or repetition.
	for i := 0; i < 5; i++ {
		if IsRetriable(3, "x") != false {
			t.Fatalf("classifier is not pure across repeated calls")
		}
	}
}

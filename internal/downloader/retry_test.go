package downloader

import (
	"testing"
	"time"

	"github.com/wb1016/copernicus-mcp/internal/cdse"
)

func TestClassify(t *testing.T) {
	policy := DefaultRetryPolicy()

	cases := []struct {
		name     string
		kind     cdse.ErrorKind
		authUsed int
		netUsed  int
		want     retryStep
	}{
		{"auth first rejection refreshes", cdse.ErrorAuth, 0, 0, stepRefreshAndRetry},
		{"auth budget spent fails", cdse.ErrorAuth, 1, 0, stepFail},
		{"network first failure backs off", cdse.ErrorNetwork, 0, 0, stepBackoffAndRetry},
		{"network second failure backs off", cdse.ErrorNetwork, 0, 1, stepBackoffAndRetry},
		{"network budget spent fails", cdse.ErrorNetwork, 0, 2, stepFail},
		{"not found never retries", cdse.ErrorNotFound, 0, 0, stepFail},
		{"validation never retries", cdse.ErrorValidation, 0, 0, stepFail},
		{"configuration never retries", cdse.ErrorConfiguration, 0, 0, stepFail},
		{"filesystem never retries", cdse.ErrorFilesystem, 0, 0, stepFail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := policy.classify(tc.kind, tc.authUsed, tc.netUsed); got != tc.want {
				t.Errorf("classify(%v, %d, %d) = %v, want %v",
					tc.kind, tc.authUsed, tc.netUsed, got, tc.want)
			}
		})
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	policy := DefaultRetryPolicy()

	if got := policy.next(500 * time.Millisecond); got != time.Second {
		t.Errorf("next(500ms) = %v, want 1s", got)
	}
	if got := policy.next(16 * time.Second); got != 30*time.Second {
		t.Errorf("next(16s) = %v, want the 30s cap", got)
	}
	if got := policy.next(30 * time.Second); got != 30*time.Second {
		t.Errorf("next(30s) = %v, want to stay at the cap", got)
	}
}

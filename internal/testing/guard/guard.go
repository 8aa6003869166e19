package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("TRADEDOCS_TEST_MODE") == "" {
			_ = os.Setenv("TRADEDOCS_TEST_MODE", "1")
		}
	})
}

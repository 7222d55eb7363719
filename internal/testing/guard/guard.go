package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("LOOMLINE_TEST_MODE") == "" {
			_ = os.Setenv("LOOMLINE_TEST_MODE", "1")
		}
	})
}

package baseline_test

import "os"

func writeGarbage(path string) error {
	return os.WriteFile(path, []byte("not-a-baseline-file-at-all"), 0o600)
}

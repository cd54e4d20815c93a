package util

import "github.com/sirupsen/logrus"

// ContinueOrFatal aborts the process on a bootstrap error. Only used during
// startup wiring, never on a request path.
func ContinueOrFatal(err error) {
	if err != nil {
		logrus.Fatal(err)
	}
}

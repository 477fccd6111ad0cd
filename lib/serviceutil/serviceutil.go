package serviceutil

import (
	"log/slog"
	"os"
)

// Exit logs `message` with `err` and exits with `code`.
func Exit(code int, message string, err error) {
	slog.Error(message, "err", err.Error(), "exit_code", code)
	os.Exit(code)
}

package main

import (
	"github.com/sirupsen/logrus"

	"notify-mail-relay-go/internal/app"
)

func main() {
	if err := app.Execute(); err != nil {
		logrus.Fatalf("application error: %v", err)
	}
}

package main

import (
	"os"

	"github.com/hlachaal/24hkids-platform/internal/cli"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("kidsbooking failed")
		os.Exit(1)
	}
}

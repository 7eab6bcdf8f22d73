package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/jwillz7667/CropLens/internal/notification"
	"github.com/jwillz7667/CropLens/internal/ui"
)

func printBanner() {
	banner := figure.NewFigure("CropLens", "isometric1", true)
	bannercolor.Cyan(banner.String())
	fmt.Println()
}

func loadEnv() {
	for _, path := range []string{"../../.env", "../.env", ".env"} {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

func main() {
	loadEnv()

	defer func() {
		if r := recover(); r != nil {
			bannercolor.Red("PANIC: %v", r)
			discord := &notification.DiscordNotifier{ErrorURL: os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")}
			msg := fmt.Sprintf("CropLens CLI panic:\n\n%v\n\nStack trace:\n%s", r, debug.Stack())
			if err := discord.SendError(context.Background(), msg); err != nil {
				bannercolor.Red("Failed to send notification: %s", err.Error())
			}
			os.Exit(2)
		}
	}()

	if len(os.Args) == 1 {
		printBanner()
	}
	if err := ui.Execute(); err != nil {
		os.Exit(1)
	}
}

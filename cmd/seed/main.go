package main

import (
	"flag"
	"log"
	"strings"

	"github.com/herta-labs/vibechecker/internal/client"
)

var starterBlacklist = []string{
	"badword", "heck", "darn", "scam", "spam",
}

var sampleTexts = []string{
	"I absolutely love this!",
	"This is great",
	"This is awful",
	"The weather report says rain tomorrow.",
	"Best purchase I have made all year, truly fantastic.",
	"Terrible support, nobody ever answered my ticket.",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Vibechecker server URL")
	name := flag.String("name", "seed-app", "application name to register")
	words := flag.String("words", strings.Join(starterBlacklist, ","), "comma-separated starter blacklist")
	flag.Parse()

	log.Printf("Seeding %s...", *baseURL)

	c := client.New(*baseURL)
	if err := c.Register(*name, "", ""); err != nil {
		log.Fatalf("register %s: %v", *name, err)
	}
	if err := c.Login(); err != nil {
		log.Fatalf("authenticate: %v", err)
	}
	log.Printf("✓ Registered client: %s", c.ClientID)

	blacklist := strings.Split(*words, ",")
	msg, err := c.CustomWords("add", "blacklist", blacklist)
	if err != nil {
		log.Fatalf("seed blacklist: %v", err)
	}
	log.Printf("✓ Blacklist: %s", msg)

	results, err := c.VibeBatch(sampleTexts)
	if err != nil {
		log.Fatalf("seed vibes: %v", err)
	}
	for _, r := range results {
		log.Printf("✓ %s  %-8s  %.4f  %s", r.ID, r.Vibe, r.Score, r.Text)
	}

	log.Printf("Done. Credentials: %s / %s (shown once)", c.ClientID, c.ClientSecret)
}

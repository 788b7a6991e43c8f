package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/warofcoins/marketguard/internal/adapters/marketdata"
	"github.com/warofcoins/marketguard/internal/strutils"
)

const defaultBaseURL = "https://public-api.birdeye.so"

func getenvOr(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func main() {
	apiKey := os.Getenv("UPSTREAM_API_KEY")
	if apiKey == "" {
		log.Fatal("No upstream API key provided")
	}

	if len(os.Args) < 2 {
		log.Fatal("No mint provided")
	}

	mint, err := strutils.NormalizeMint(os.Args[1])
	if err != nil {
		log.Fatalf("Invalid mint: %v", err)
	}

	chain := "solana"
	if len(os.Args) >= 3 {
		chain = os.Args[2]
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	provider, err := marketdata.NewBirdeye(httpClient, getenvOr("UPSTREAM_BASE_URL", defaultBaseURL), apiKey, 1, time.Now)
	if err != nil {
		log.Fatalf("Failed to initialize provider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	overview, err := provider.GetTokenOverview(ctx, chain, mint)
	if err != nil {
		log.Fatalf("Failed to get token overview: %v", err)
	}

	data, err := json.MarshalIndent(overview, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal token overview: %v", err)
	}
	fmt.Println(string(data))
}

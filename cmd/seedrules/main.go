// Command seedrules writes the category rule book into MongoDB so the API can
// be started with RULES_SOURCE=mongo.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/example/waste-sort/internal/logging"
	"github.com/example/waste-sort/internal/rulebook"
)

func main() {
	_ = godotenv.Load()

	file := flag.String("file", "", "JSON or YAML rule book to seed (defaults to the embedded book)")
	uri := flag.String("mongo-uri", getEnv("MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	database := flag.String("db", getEnv("MONGO_DATABASE", "wastesort"), "MongoDB database name")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	dryRun := flag.Bool("dry-run", false, "validate the rule book without writing")
	flag.Parse()

	logger, err := logging.NewLogger("info")
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	book, err := loadBook(*file)
	if err != nil {
		logger.Fatal("failed to load rule book", zap.String("file", *file), zap.Error(err))
	}
	if _, err := book.Registry(); err != nil {
		logger.Fatal("rule book has an invalid category registry", zap.Error(err))
	}
	if _, err := book.Resolver(); err != nil {
		logger.Fatal("rule book has an invalid label table", zap.Error(err))
	}
	if *dryRun {
		logger.Info("rule book is valid", zap.Int("categories", len(book.Categories)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := rulebook.Connect(ctx, *uri)
	if err != nil {
		logger.Fatal("failed to connect to mongo", zap.Error(err))
	}
	defer client.Disconnect(context.Background()) //nolint:errcheck

	if err := rulebook.NewStore(client.Database(*database), logger).Seed(ctx, book); err != nil {
		logger.Fatal("failed to seed rule book", zap.Error(err))
	}
	logger.Info("rule book seeded",
		zap.String("database", *database),
		zap.Int("categories", len(book.Categories)),
		zap.Int("general_rules", len(book.Guide.GeneralRules)),
	)
}

func loadBook(path string) (*rulebook.Book, error) {
	if path == "" {
		return rulebook.Default()
	}
	return rulebook.LoadFile(path)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

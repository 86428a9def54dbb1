// Command main runs the database seeder for Tech Tribune.
package main

import (
	"context"
	"flag"
	"log"

	"tribune/internal/config"
	"tribune/internal/database"
	"tribune/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	numAuthors := flag.Int("authors", defaults.NumAuthors, "Number of admin authors to create")
	numUsers := flag.Int("users", defaults.NumUsers, "Number of readers to create")
	numPosts := flag.Int("posts", defaults.NumPosts, "Number of posts to create")
	likeRate := flag.Float64("like-rate", defaults.LikeRate, "Chance that a reader likes a post")
	shouldClean := flag.Bool("clean", false, "Delete existing users, posts and likes before seeding")
	fast := flag.Bool("fast", false, "Store demo passwords unhashed (local development only)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *fast && cfg.IsProduction() {
		log.Fatal("-fast is not allowed in production")
	}

	ctx := context.Background()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	res, err := seed.Run(ctx, db, seed.Options{
		NumAuthors:  *numAuthors,
		NumUsers:    *numUsers,
		NumPosts:    *numPosts,
		MaxDays:     defaults.MaxDays,
		LikeRate:    *likeRate,
		ShouldClean: *shouldClean,
		SkipBcrypt:  *fast,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	if res.Skipped {
		log.Println("Database already has posts; rerun with -clean to replace them.")
		return
	}

	log.Printf("Created %d authors, %d readers, %d posts and %d likes.",
		len(res.Authors), len(res.Readers), len(res.Posts), res.Likes)
	log.Printf("All demo accounts use the password: %s", seed.DemoPassword)
}

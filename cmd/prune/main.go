package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"opinion-market/internal/config"
)

// Prunes stale rate-limit bookkeeping rows. Trade counters and per-opinion
// trade marks only matter for the block they were written in, so anything
// older than the cutoff is dead weight. Run it from cron.
func main() {
	keepBlocks := flag.Int64("keep-blocks", 10_000, "delete rate-limit rows older than this many blocks behind the newest")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	var latest sql.NullInt64
	if err := db.QueryRow("SELECT MAX(block_number) FROM trade_counters").Scan(&latest); err != nil {
		log.Fatal("Failed to read latest block:", err)
	}
	if !latest.Valid {
		fmt.Println("No rate-limit rows to prune")
		return
	}
	cutoff := latest.Int64 - *keepBlocks
	if cutoff <= 0 {
		fmt.Println("Nothing older than the cutoff yet")
		return
	}

	result, err := db.Exec("DELETE FROM trade_counters WHERE block_number < $1", cutoff)
	if err != nil {
		log.Fatal("Failed to delete trade counters:", err)
	}
	rows, _ := result.RowsAffected()
	fmt.Printf("Deleted %d trade counters below block %d\n", rows, cutoff)

	result, err = db.Exec("DELETE FROM opinion_trade_marks WHERE block_number < $1", cutoff)
	if err != nil {
		log.Fatal("Failed to delete trade marks:", err)
	}
	rows, _ = result.RowsAffected()
	fmt.Printf("Deleted %d trade marks below block %d\n", rows, cutoff)
}

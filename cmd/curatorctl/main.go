// Заведение учёток кураторов для дашборда. Запускается руками на сервере:
//
//	curatorctl -user-id 123456789 -phone "+79991234567" -name "Иванова" -password "..."
//
// Добавленный user_id также должен попасть в CURATOR_IDS, иначе учётка
// сможет только читать.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tehnologistika/GdeGruz/internal/config"
	"github.com/Tehnologistika/GdeGruz/internal/curators"
)

func main() {
	config.LoadDotEnvUp(8)

	var (
		userID   = flag.Int64("user-id", 0, "platform user id (telegram)")
		phone    = flag.String("phone", "", "curator phone")
		name     = flag.String("name", "", "display name (optional)")
		password = flag.String("password", "", "dashboard password")
	)
	flag.Parse()

	if *userID == 0 || *phone == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "-user-id, -phone and -password are required")
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		fmt.Fprintln(os.Stderr, "postgres:", err)
		os.Exit(1)
	}
	defer pool.Close()

	var namePtr *string
	if *name != "" {
		namePtr = name
	}

	c, err := curators.NewRepo(pool).Create(ctx, *userID, *phone, namePtr, *password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create curator:", err)
		os.Exit(1)
	}
	fmt.Printf("curator created: id=%d user_id=%d phone=%s\n", c.ID, c.UserID, c.Phone)
}

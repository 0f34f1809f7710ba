// Command seeder loads reference data for local development: customers,
// vehicles, job types and the material catalog. Materials can be read from a
// CSV file with the header "product_name,product_cost".
package main

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type material struct {
	Name string
	Cost decimal.Decimal
}

var defaultMaterials = []material{
	{"Engine oil 10W-40 (1L)", decimal.RequireFromString("85000")},
	{"Oil filter", decimal.RequireFromString("45000")},
	{"Air filter", decimal.RequireFromString("60000")},
	{"Spark plug", decimal.RequireFromString("25000")},
	{"Brake pad set (front)", decimal.RequireFromString("150000")},
	{"Brake fluid DOT 4 (500ml)", decimal.RequireFromString("55000")},
	{"Coolant (1L)", decimal.RequireFromString("40000")},
	{"Drive chain kit", decimal.RequireFromString("320000")},
	{"Wiper blade", decimal.RequireFromString("35000")},
	{"Battery 12V 5Ah", decimal.RequireFromString("275000")},
}

func main() {
	materialsCSV := flag.String("materials", "", "path to a CSV file with product_name,product_cost rows")
	withCustomers := flag.Bool("customers", true, "seed demo customers, vehicles and job types")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	materials := defaultMaterials
	if *materialsCSV != "" {
		f, err := os.Open(*materialsCSV)
		if err != nil {
			log.Fatalf("Failed to open %s: %v", *materialsCSV, err)
		}
		materials, err = readMaterials(f)
		_ = f.Close()
		if err != nil {
			log.Fatalf("Failed to read materials: %v", err)
		}
	}

	seedMaterials(db, materials)
	if *withCustomers {
		seedJobTypes(db)
		seedCustomers(db)
	}
	log.Println("Seeding completed successfully!")
}

func readMaterials(r io.Reader) ([]material, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("empty file")
	}
	var out []material
	for i, row := range rows[1:] {
		if len(row) != 2 {
			return nil, fmt.Errorf("line %d: expected 2 columns, got %d", i+2, len(row))
		}
		cost, err := decimal.NewFromString(strings.TrimSpace(row[1]))
		if err != nil || cost.IsNegative() {
			return nil, fmt.Errorf("line %d: invalid product_cost %q", i+2, row[1])
		}
		out = append(out, material{Name: strings.TrimSpace(row[0]), Cost: cost.Round(2)})
	}
	return out, nil
}

func seedMaterials(db *sql.DB, materials []material) {
	fmt.Println("Seeding Materials...")
	for _, m := range materials {
		_, err := db.Exec(`
			INSERT INTO job_materials (product_name, product_cost)
			VALUES ($1, $2)
			ON CONFLICT (product_name) DO UPDATE SET product_cost = EXCLUDED.product_cost, updated_at = now();
		`, m.Name, m.Cost.StringFixed(2))
		if err != nil {
			log.Printf("Failed to upsert material %s: %v", m.Name, err)
		}
	}
}

func seedJobTypes(db *sql.DB) {
	fmt.Println("Seeding Job Types...")
	for _, name := range []string{"Periodic service", "Brake repair", "Engine overhaul", "Electrical", "Tune-up"} {
		if _, err := db.Exec(`INSERT INTO job_types (name) VALUES ($1) ON CONFLICT (name) DO NOTHING;`, name); err != nil {
			log.Printf("Failed to seed job type %s: %v", name, err)
		}
	}
}

func seedCustomers(db *sql.DB) {
	customers := []struct {
		First, Last, Phone string
		Vehicles           [][2]string
	}{
		{"Budi", "Santoso", "081200000001", [][2]string{{"Honda Vario 125", "B 1234 KJX"}}},
		{"Siti", "Aminah", "081200000002", [][2]string{{"Toyota Avanza", "D 4521 AB"}, {"Yamaha NMAX", "D 3310 ZT"}}},
		{"Andi", "Pratama", "081200000003", [][2]string{{"Suzuki Ertiga", "L 8890 PQ"}}},
	}

	fmt.Println("Seeding Customers...")
	for _, c := range customers {
		var id int64
		err := db.QueryRow(`SELECT id FROM customers WHERE phone = $1`, c.Phone).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			err = db.QueryRow(`
				INSERT INTO customers (first_name, last_name, phone)
				VALUES ($1, $2, $3)
				RETURNING id;
			`, c.First, c.Last, c.Phone).Scan(&id)
		}
		if err != nil {
			log.Printf("Failed to seed customer %s %s: %v", c.First, c.Last, err)
			continue
		}
		for _, v := range c.Vehicles {
			_, err := db.Exec(`
				INSERT INTO vehicles (customer_id, model_name, license_plate)
				SELECT $1, $2, $3
				WHERE NOT EXISTS (SELECT 1 FROM vehicles WHERE license_plate = $3);
			`, id, v[0], v[1])
			if err != nil {
				log.Printf("Failed to seed vehicle %s: %v", v[1], err)
			}
		}
	}
}

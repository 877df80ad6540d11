// ABOUTME: Per-dialect DDL for the orders and products tables and the order_details view
// ABOUTME: Statements are idempotent so Migrate can run on every startup

package store

func schemaStatements(d dialect) []string {
	switch d.name {
	case DialectMySQL:
		return []string{
			`CREATE TABLE IF NOT EXISTS products (
				id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NULL,
				price DECIMAL(10,2) NOT NULL,
				stock_quantity INT NOT NULL DEFAULT 0,
				category VARCHAR(255) NULL,
				is_active TINYINT(1) NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS orders (
				id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
				transaction_id VARCHAR(64) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL,
				amount DECIMAL(10,2) NOT NULL,
				status VARCHAR(32) NOT NULL DEFAULT 'pending',
				product_id BIGINT UNSIGNED NULL,
				quantity INT NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				INDEX idx_orders_status (status),
				INDEX idx_orders_created_at (created_at),
				FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE SET NULL
			)`,
			`CREATE OR REPLACE VIEW order_details AS ` + orderDetailsSelect,
		}
	case DialectPostgres:
		return []string{
			`CREATE TABLE IF NOT EXISTS products (
				id BIGSERIAL PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT,
				price NUMERIC(10,2) NOT NULL,
				stock_quantity INTEGER NOT NULL DEFAULT 0,
				category VARCHAR(255),
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS orders (
				id BIGSERIAL PRIMARY KEY,
				transaction_id VARCHAR(64) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL,
				amount NUMERIC(10,2) NOT NULL,
				status VARCHAR(32) NOT NULL DEFAULT 'pending',
				product_id BIGINT REFERENCES products(id) ON DELETE SET NULL,
				quantity INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,
			`CREATE OR REPLACE VIEW order_details AS ` + orderDetailsSelect,
		}
	default:
		return []string{
			`CREATE TABLE IF NOT EXISTS products (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				description TEXT,
				price REAL NOT NULL,
				stock_quantity INTEGER NOT NULL DEFAULT 0,
				category TEXT,
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS orders (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				transaction_id TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				amount REAL NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				product_id INTEGER REFERENCES products(id) ON DELETE SET NULL,
				quantity INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				CHECK (status IN ('pending', 'processing', 'completed', 'cancelled', 'refunded'))
			)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,
			`CREATE VIEW IF NOT EXISTS order_details AS ` + orderDetailsSelect,
		}
	}
}

const orderDetailsSelect = `SELECT
	o.id AS id,
	o.transaction_id AS transaction_id,
	o.name AS customer_name,
	o.amount AS amount,
	o.status AS status,
	o.product_id AS product_id,
	p.name AS product_name,
	o.quantity AS quantity,
	o.created_at AS created_at,
	o.updated_at AS updated_at
FROM orders o
LEFT JOIN products p ON p.id = o.product_id`

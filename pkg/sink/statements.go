package sink

import (
	"fmt"

	"github.com/David-Botos/nhs-ingress/pkg/connector"
)

// Statement argument order for every dialect: trust_code, period,
// data_type, document. Update statements take the document first.

func upsertSQL(d connector.Dialect, table, field string) string {
	switch d {
	case connector.DialectPostgres:
		return fmt.Sprintf(`
			INSERT INTO %[1]s (trust_code, period, data_type, %[2]s, updated_at)
			VALUES ($1, $2::date, $3, $4::jsonb, now())
			ON CONFLICT (trust_code, period, data_type)
			DO UPDATE SET %[2]s = EXCLUDED.%[2]s, updated_at = EXCLUDED.updated_at`,
			table, field)
	case connector.DialectSnowflake:
		return fmt.Sprintf(`
			MERGE INTO %[1]s t
			USING (SELECT ? AS trust_code, TO_DATE(?) AS period, ? AS data_type, PARSE_JSON(?) AS doc) s
			ON t.trust_code = s.trust_code AND t.period = s.period AND t.data_type = s.data_type
			WHEN MATCHED THEN UPDATE SET t.%[2]s = s.doc, t.updated_at = CURRENT_TIMESTAMP()
			WHEN NOT MATCHED THEN INSERT (trust_code, period, data_type, %[2]s, updated_at)
			VALUES (s.trust_code, s.period, s.data_type, s.doc, CURRENT_TIMESTAMP())`,
			table, field)
	default:
		return fmt.Sprintf(`
			INSERT INTO %[1]s (trust_code, period, data_type, %[2]s, updated_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (trust_code, period, data_type)
			DO UPDATE SET %[2]s = excluded.%[2]s, updated_at = excluded.updated_at`,
			table, field)
	}
}

func updateSQL(d connector.Dialect, table, field string) string {
	switch d {
	case connector.DialectPostgres:
		return fmt.Sprintf(`
			UPDATE %s SET %s = $1::jsonb, updated_at = now()
			WHERE trust_code = $2 AND period = $3::date AND data_type = $4`,
			table, field)
	case connector.DialectSnowflake:
		return fmt.Sprintf(`
			UPDATE %s SET %s = PARSE_JSON(?), updated_at = CURRENT_TIMESTAMP()
			WHERE trust_code = ? AND period = TO_DATE(?) AND data_type = ?`,
			table, field)
	default:
		return fmt.Sprintf(`
			UPDATE %s SET %s = ?, updated_at = CURRENT_TIMESTAMP
			WHERE trust_code = ? AND period = ? AND data_type = ?`,
			table, field)
	}
}

// selectSQL reads one field back. Postgres filters with = ANY($1) and a
// pq.Array argument; the other dialects expand IN (?) through sqlx.In.
func selectSQL(d connector.Dialect, table, field string, filtered bool) string {
	var cols, where string
	switch d {
	case connector.DialectPostgres:
		cols = fmt.Sprintf("trust_code, to_char(period, 'YYYY-MM-DD') AS period, data_type, %s::text AS document", field)
		if filtered {
			where = " AND trust_code = ANY($1)"
		}
	case connector.DialectSnowflake:
		// Quoted aliases keep the lower-case names the struct tags expect
		cols = fmt.Sprintf(`trust_code AS "trust_code", TO_CHAR(period, 'YYYY-MM-DD') AS "period", `+
			`data_type AS "data_type", TO_JSON(%s) AS "document"`, field)
		if filtered {
			where = " AND trust_code IN (?)"
		}
	default:
		cols = fmt.Sprintf("trust_code, period, data_type, %s AS document", field)
		if filtered {
			where = " AND trust_code IN (?)"
		}
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL%s ORDER BY trust_code, period, data_type",
		cols, table, field, where)
}

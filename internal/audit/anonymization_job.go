package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// AnonymizationJob defines the interface for IP address anonymization jobs.
type AnonymizationJob interface {
	// Run executes the IP anonymization process for eligible audit logs.
	// Returns the number of logs anonymized and any error encountered.
	Run(ctx context.Context) (int, error)
}

// AnonymizationJobConfig configures the IP anonymization job.
type AnonymizationJobConfig struct {
	DB        *sql.DB      // Audit database handle
	Logger    *slog.Logger // Logger for job execution
	BatchSize int          // Number of logs to process per batch
	DryRun    bool         // If true, only count what would be anonymized
}

// PostgresAnonymizationJob rewrites stale IP addresses in place. The chain
// hash excludes IPAddress, so anonymized rows still verify.
type PostgresAnonymizationJob struct {
	config AnonymizationJobConfig
}

// NewAnonymizationJob creates a new IP anonymization job.
func NewAnonymizationJob(config AnonymizationJobConfig) *PostgresAnonymizationJob {
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &PostgresAnonymizationJob{
		config: config,
	}
}

// Run anonymizes IP addresses on entries older than the retention cutoff,
// in batches, until no eligible rows remain.
func (j *PostgresAnonymizationJob) Run(ctx context.Context) (int, error) {
	cutoff := IPAnonymizationCutoff()
	j.config.Logger.Info("starting IP anonymization job",
		"cutoff_date", cutoff,
		"dry_run", j.config.DryRun,
	)

	if j.config.DryRun {
		var count int
		err := j.config.DB.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM audit_logs
			WHERE created_at < $1
			  AND ip_anonymized_at IS NULL
			  AND ip_address <> ''
		`, cutoff).Scan(&count)
		if err != nil {
			return 0, fmt.Errorf("failed to count eligible logs: %w", err)
		}
		j.config.Logger.Info("dry run complete", "eligible", count)
		return count, nil
	}

	total := 0
	for {
		rows, err := j.config.DB.QueryContext(ctx, `
			SELECT id, ip_address FROM audit_logs
			WHERE created_at < $1
			  AND ip_anonymized_at IS NULL
			  AND ip_address <> ''
			LIMIT $2
		`, cutoff, j.config.BatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to query eligible logs: %w", err)
		}

		type pending struct {
			id string
			ip string
		}
		var batch []pending
		for rows.Next() {
			var p pending
			if err := rows.Scan(&p.id, &p.ip); err != nil {
				rows.Close()
				return total, fmt.Errorf("failed to scan eligible log: %w", err)
			}
			batch = append(batch, p)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return total, fmt.Errorf("failed to iterate eligible logs: %w", err)
		}
		rows.Close()

		if len(batch) == 0 {
			break
		}

		for _, p := range batch {
			if _, err := j.config.DB.ExecContext(ctx, `
				UPDATE audit_logs
				SET ip_address = $1, ip_anonymized_at = NOW()
				WHERE id = $2
			`, AnonymizeIP(p.ip), p.id); err != nil {
				return total, fmt.Errorf("failed to anonymize log %s: %w", p.id, err)
			}
			total++
		}
	}

	j.config.Logger.Info("IP anonymization job complete", "anonymized", total)
	return total, nil
}

// AnonymizeOldIPs runs a one-shot anonymization pass with default settings.
func AnonymizeOldIPs(ctx context.Context, db *sql.DB, logger *slog.Logger) (int, error) {
	job := NewAnonymizationJob(AnonymizationJobConfig{DB: db, Logger: logger})
	return job.Run(ctx)
}

// Package batch runs a CSV batch through the composer and orchestrator one
// row at a time, recording an outcome per row.
package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/bcnelson/bulk-vm-provisioner/internal/config"
	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/provision"
)

// Columns lists the CSV columns the driver reads. Other columns are ignored.
var Columns = []string{
	"status", "tenant", "cluster", "datazone", "prom_alert_type", "env", "platform",
	"role", "backup", "backup_offsite", "vcpus", "memory", "disk", "hostname",
	"ip_address", "vlan", "extra_tags",
}

// Catalog is the catalog capability a batch needs.
type Catalog interface {
	provision.Lookup
	provision.Catalog
}

// Options configure a Driver.
type Options struct {
	Provision        provision.Options
	DefaultAlertType string
}

// Result is the outcome of a batch.
type Result struct {
	// Payload is the CSV exactly as submitted.
	Payload   string
	Outcomes  []domain.RowOutcome
	Succeeded int
	Failed    int
}

// Driver processes batches against one catalog.
type Driver struct {
	composer     *provision.Composer
	orchestrator *provision.Orchestrator
	log          logr.Logger
}

// NewDriver creates a Driver whose rows read and write catalog.
func NewDriver(catalog Catalog, profile *config.Profile, opts Options, log logr.Logger) *Driver {
	return &Driver{
		composer:     provision.NewComposer(catalog, opts.DefaultAlertType),
		orchestrator: provision.NewOrchestrator(catalog, profile, opts.Provision, log.WithName("provision")),
		log:          log,
	}
}

// RoundRobin hands out datazones 1,2,1,2,... to rows that take the "rr" default.
// The zero value starts at 1.
type RoundRobin struct {
	second bool
}

// Datazone returns def unless it is the round-robin sentinel, in which case
// it returns the next zone and advances.
func (rr *RoundRobin) Datazone(def string) string {
	if def != domain.DatazoneRoundRobin {
		return def
	}
	zone := "1"
	if rr.second {
		zone = "2"
	}
	rr.second = !rr.second
	return zone
}

// Run provisions every row of payload in order. A row that fails is recorded
// and the batch moves on; only an unreadable header or a cancelled context
// stops it early.
func (d *Driver) Run(ctx context.Context, payload string, defaults domain.Defaults) (*Result, error) {
	start := time.Now()
	defer func() { recordBatchMetric(time.Since(start).Seconds()) }()

	res := &Result{Payload: payload}
	if defaults.Datazone == "" {
		defaults.Datazone = domain.DatazoneRoundRobin
	}

	r := csv.NewReader(strings.NewReader(payload))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", domain.ErrInvalidInput, err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var rr RoundRobin
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		var outcome domain.RowOutcome
		if err != nil {
			outcome = failure(line, fields, nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		} else {
			row := rowMap(header, fields)
			outcome = d.runRow(ctx, line, row, fields, defaults, &rr)
		}

		if outcome.Success {
			res.Succeeded++
			d.log.Info("row provisioned", "line", line, "hostname", outcome.Hostname)
		} else {
			res.Failed++
			d.log.Info("row failed", "line", line, "kind", outcome.ErrorKind, "step", outcome.Step, "message", outcome.Message)
		}
		recordRowMetric(outcome.Success)
		res.Outcomes = append(res.Outcomes, outcome)
	}
	return res, nil
}

func (d *Driver) runRow(ctx context.Context, line int, row map[string]string, raw []string, defaults domain.Defaults, rr *RoundRobin) domain.RowOutcome {
	in := Input(row, defaults, rr)

	record, err := d.composer.Compose(ctx, in)
	if err != nil {
		return failure(line, raw, row, err)
	}

	res, err := d.orchestrator.Provision(ctx, record)
	if err != nil {
		out := failure(line, raw, row, err)
		out.Hostname = record.Hostname
		if res != nil {
			out.Compensated = res.Compensated
		}
		return out
	}

	return domain.RowOutcome{
		Line:     line,
		Success:  true,
		Hostname: record.Hostname,
		Message:  successMessage(record, res),
	}
}

// Input builds the composer input for a row, taking each field from the row
// when it has a value and from defaults otherwise.
func Input(row map[string]string, defaults domain.Defaults, rr *RoundRobin) provision.Input {
	value := func(column, def string) string {
		if v := row[column]; v != "" {
			return v
		}
		return def
	}

	datazone := row["datazone"]
	if datazone == "" {
		datazone = rr.Datazone(defaults.Datazone)
	}

	return provision.Input{
		Status:        value("status", defaults.Status),
		Tenant:        domain.ByKey[domain.Tenant](value("tenant", defaults.Tenant)),
		Cluster:       domain.ByKey[domain.Cluster](value("cluster", defaults.Cluster)),
		AlertType:     value("prom_alert_type", defaults.AlertType),
		Datazone:      domain.ByKey[domain.Tag](datazone),
		Env:           domain.ByKey[domain.Tag](value("env", defaults.Env)),
		Platform:      domain.ByKey[domain.Platform](value("platform", defaults.Platform)),
		Role:          domain.ByKey[domain.Role](value("role", defaults.Role)),
		Backup:        domain.ByKey[domain.Tag](value("backup", defaults.Backup)),
		BackupOffsite: domain.ByKey[domain.Tag](value("backup_offsite", defaults.BackupOffsite)),
		VCPUs:         row["vcpus"],
		Memory:        row["memory"],
		Disk:          row["disk"],
		Hostname:      row["hostname"],
		Address:       row["ip_address"],
		VLAN:          row["vlan"],
		ExtraTags:     row["extra_tags"],
	}
}

func checkHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		if col == "" {
			return fmt.Errorf("%w: header column %d is empty", domain.ErrInvalidInput, i+1)
		}
		if seen[col] {
			return fmt.Errorf("%w: header column %q repeated", domain.ErrInvalidInput, col)
		}
		seen[col] = true
	}
	return nil
}

// rowMap pairs header names with values. Missing trailing values are left out
// so they fall back to defaults.
func rowMap(header, fields []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, col := range header {
		if i < len(fields) {
			row[strings.TrimSpace(col)] = strings.TrimSpace(fields[i])
		}
	}
	return row
}

func failure(line int, raw []string, row map[string]string, err error) domain.RowOutcome {
	out := domain.RowOutcome{
		Line:      line,
		Message:   fmt.Sprintf("Error in CSV line %d, while creating VM\n`%v` data\n`%s`", line, err, strings.Join(raw, ",")),
		ErrorKind: domain.ErrorKind(err),
		Row:       row,
	}
	var stepErr *provision.StepError
	if errors.As(err, &stepErr) {
		out.Step = string(stepErr.Step)
	}
	return out
}

func successMessage(r *provision.Record, res *provision.Result) string {
	return fmt.Sprintf("%s `%s` for `%s`, `%s`, in cluster `%s`, env `%s`, datazone `%s`, backup `%s`",
		r.Status.Label(),
		r.Hostname,
		r.Tenant.Name,
		res.Address.Address,
		r.Cluster.Name,
		r.EnvName(),
		r.Datazone.Name,
		r.Backup.Name,
	)
}

package responsedb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/smearceptance/internal/unfold"
)

// ResponseRecord is a stored response matrix.
type ResponseRecord struct {
	ResponseID string    `json:"response_id"`
	Name       string    `json:"name"`
	NTrue      int       `json:"n_true"`
	NReco      int       `json:"n_reco"`
	Rank       int       `json:"rank"`
	Truncation int       `json:"truncation"`
	Closure    float64   `json:"closure"`
	Singular   []float64 `json:"singular"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	Migration *mat.Dense `json:"-"`
	Inverse   *mat.Dense `json:"-"`
}

// UnfoldRecord is a stored toy-propagated unfolding.
type UnfoldRecord struct {
	ResultID   string    `json:"result_id"`
	ResponseID string    `json:"response_id"`
	Truncation int       `json:"truncation"`
	Toys       int       `json:"toys"`
	ThrowMode  string    `json:"throw_mode"`
	Mean       []float64 `json:"mean"`
	StdDev     []float64 `json:"stddev"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveResponse stores r under name and returns the new record ID.
func (db *DB) SaveResponse(name string, r *unfold.Response, notes string) (string, error) {
	migration := r.Migration()
	migBlob, err := migration.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("encode migration: %w", err)
	}
	invBlob, err := r.Inverse.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("encode inverse: %w", err)
	}
	singular, err := json.Marshal(r.Singular)
	if err != nil {
		return "", fmt.Errorf("encode singular values: %w", err)
	}
	nTrue, nReco := migration.Dims()

	id := uuid.New().String()
	_, err = db.Exec(`
		INSERT INTO responses (
			response_id, name, n_true, n_reco, rank, truncation, closure,
			singular_json, migration, inverse, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, nTrue, nReco, r.Rank, r.Truncation, r.Closure,
		string(singular), migBlob, invBlob, nullString(notes), db.clock.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert response: %w", err)
	}
	return id, nil
}

// GetResponse returns the stored record, matrices included. A missing ID
// returns sql.ErrNoRows.
func (db *DB) GetResponse(id string) (*ResponseRecord, error) {
	row := db.QueryRow(`
		SELECT response_id, name, n_true, n_reco, rank, truncation, closure,
		       singular_json, migration, inverse, notes, created_at
		FROM responses WHERE response_id = ?`, id)
	rec, err := scanResponse(row, true)
	if err != nil {
		return nil, fmt.Errorf("get response %s: %w", id, err)
	}
	return rec, nil
}

// LoadResponse rebuilds the decomposed response for a stored record at its
// stored truncation.
func (db *DB) LoadResponse(id string) (*unfold.Response, error) {
	rec, err := db.GetResponse(id)
	if err != nil {
		return nil, err
	}
	r, err := unfold.BuildResponse(rec.Migration, rec.Truncation)
	if err != nil {
		return nil, fmt.Errorf("rebuild response %s: %w", id, err)
	}
	return r, nil
}

// LatestResponse returns the ID of the newest response stored under name.
func (db *DB) LatestResponse(name string) (string, error) {
	var id string
	err := db.QueryRow(`
		SELECT response_id FROM responses
		WHERE name = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, name).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("latest response %q: %w", name, err)
	}
	return id, nil
}

// ListResponses returns every stored response without matrices, newest
// first.
func (db *DB) ListResponses() ([]*ResponseRecord, error) {
	rows, err := db.Query(`
		SELECT response_id, name, n_true, n_reco, rank, truncation, closure,
		       singular_json, NULL, NULL, notes, created_at
		FROM responses
		ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []*ResponseRecord
	for rows.Next() {
		rec, err := scanResponse(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteResponse removes a response and its unfolding results.
func (db *DB) DeleteResponse(id string) error {
	res, err := db.Exec("DELETE FROM responses WHERE response_id = ?", id)
	if err != nil {
		return fmt.Errorf("delete response: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete response rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SaveUnfold stores a toy propagation made with the given response.
func (db *DB) SaveUnfold(responseID string, truncation int, mode unfold.ThrowMode, res *unfold.ToyResult) (string, error) {
	mean, err := json.Marshal(res.Mean)
	if err != nil {
		return "", fmt.Errorf("encode mean: %w", err)
	}
	std, err := json.Marshal(res.StdDev)
	if err != nil {
		return "", fmt.Errorf("encode stddev: %w", err)
	}
	id := uuid.New().String()
	_, err = db.Exec(`
		INSERT INTO unfold_results (
			result_id, response_id, truncation, toys, throw_mode,
			mean_json, stddev_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, responseID, truncation, res.N, mode.String(), string(mean), string(std), db.clock.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert unfold result: %w", err)
	}
	return id, nil
}

// ListUnfolds returns the unfolding results of a response in insertion
// order.
func (db *DB) ListUnfolds(responseID string) ([]*UnfoldRecord, error) {
	rows, err := db.Query(`
		SELECT result_id, response_id, truncation, toys, throw_mode,
		       mean_json, stddev_json, created_at
		FROM unfold_results
		WHERE response_id = ?
		ORDER BY created_at, rowid`, responseID)
	if err != nil {
		return nil, fmt.Errorf("list unfold results: %w", err)
	}
	defer rows.Close()

	var out []*UnfoldRecord
	for rows.Next() {
		u := &UnfoldRecord{}
		var mean, std string
		var created int64
		if err := rows.Scan(&u.ResultID, &u.ResponseID, &u.Truncation, &u.Toys, &u.ThrowMode, &mean, &std, &created); err != nil {
			return nil, fmt.Errorf("scan unfold result: %w", err)
		}
		if err := json.Unmarshal([]byte(mean), &u.Mean); err != nil {
			return nil, fmt.Errorf("decode mean: %w", err)
		}
		if err := json.Unmarshal([]byte(std), &u.StdDev); err != nil {
			return nil, fmt.Errorf("decode stddev: %w", err)
		}
		u.CreatedAt = time.Unix(0, created)
		out = append(out, u)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResponse(s scanner, withMatrices bool) (*ResponseRecord, error) {
	rec := &ResponseRecord{}
	var (
		singular         string
		migBlob, invBlob []byte
		notes            sql.NullString
		created          int64
	)
	err := s.Scan(
		&rec.ResponseID, &rec.Name, &rec.NTrue, &rec.NReco, &rec.Rank, &rec.Truncation, &rec.Closure,
		&singular, &migBlob, &invBlob, &notes, &created,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(singular), &rec.Singular); err != nil {
		return nil, fmt.Errorf("decode singular values: %w", err)
	}
	if notes.Valid {
		rec.Notes = notes.String
	}
	rec.CreatedAt = time.Unix(0, created)
	if withMatrices {
		rec.Migration = &mat.Dense{}
		if err := rec.Migration.UnmarshalBinary(migBlob); err != nil {
			return nil, fmt.Errorf("decode migration: %w", err)
		}
		rec.Inverse = &mat.Dense{}
		if err := rec.Inverse.UnmarshalBinary(invBlob); err != nil {
			return nil, fmt.Errorf("decode inverse: %w", err)
		}
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package db

import (
	"context"
)

const createLookup = `insert into lookup (identifier, title, tier, mode, error, looked_up_at)
values (?, ?, ?, ?, ?, ?)
returning id`

type CreateLookupParams struct {
	Identifier string
	Title      string
	Tier       string
	Mode       string
	Error      string
	LookedUpAt int64
}

func (q *Queries) CreateLookup(ctx context.Context, arg CreateLookupParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createLookup,
		arg.Identifier,
		arg.Title,
		arg.Tier,
		arg.Mode,
		arg.Error,
		arg.LookedUpAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const addImage = `insert into image (lookup_id, position, url, tier, filename)
values (?, ?, ?, ?, ?)`

type AddImageParams struct {
	LookupID int64
	Position int64
	Url      string
	Tier     string
	Filename string
}

func (q *Queries) AddImage(ctx context.Context, arg AddImageParams) error {
	_, err := q.db.ExecContext(ctx, addImage,
		arg.LookupID,
		arg.Position,
		arg.Url,
		arg.Tier,
		arg.Filename,
	)
	return err
}

const getLookups = `select id, identifier, title, tier, mode, error, looked_up_at from lookup
where identifier = ?
order by looked_up_at desc, id desc
limit ?`

type GetLookupsParams struct {
	Identifier string
	Limit      int64
}

func (q *Queries) GetLookups(ctx context.Context, arg GetLookupsParams) ([]Lookup, error) {
	rows, err := q.db.QueryContext(ctx, getLookups, arg.Identifier, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Lookup
	for rows.Next() {
		var i Lookup
		if err := rows.Scan(
			&i.ID,
			&i.Identifier,
			&i.Title,
			&i.Tier,
			&i.Mode,
			&i.Error,
			&i.LookedUpAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getRecentLookups = `select id, identifier, title, tier, mode, error, looked_up_at from lookup
order by looked_up_at desc, id desc
limit ?`

func (q *Queries) GetRecentLookups(ctx context.Context, limit int64) ([]Lookup, error) {
	rows, err := q.db.QueryContext(ctx, getRecentLookups, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Lookup
	for rows.Next() {
		var i Lookup
		if err := rows.Scan(
			&i.ID,
			&i.Identifier,
			&i.Title,
			&i.Tier,
			&i.Mode,
			&i.Error,
			&i.LookedUpAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getImages = `select lookup_id, position, url, tier, filename from image
where lookup_id = ?
order by position`

func (q *Queries) GetImages(ctx context.Context, lookupID int64) ([]Image, error) {
	rows, err := q.db.QueryContext(ctx, getImages, lookupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Image
	for rows.Next() {
		var i Image
		if err := rows.Scan(
			&i.LookupID,
			&i.Position,
			&i.Url,
			&i.Tier,
			&i.Filename,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteLookupsBefore = `delete from lookup where looked_up_at < ?`

func (q *Queries) DeleteLookupsBefore(ctx context.Context, before int64) error {
	_, err := q.db.ExecContext(ctx, deleteLookupsBefore, before)
	return err
}

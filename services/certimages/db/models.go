package db

type Lookup struct {
	ID         int64
	Identifier string
	Title      string
	Tier       string
	Mode       string
	Error      string
	LookedUpAt int64
}

type Image struct {
	LookupID int64
	Position int64
	Url      string
	Tier     string
	Filename string
}

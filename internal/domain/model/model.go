// Package model declares the entities served by claimservice.
package model

import "github.com/lllypuk/claimservice/internal/domain/entity"

// Entity names.
const (
	ClaimEntity    = "claim"
	CustomerEntity = "customer"
	ReviewEntity   = "review"
	UserEntity     = "user"
)

const (
	textRules  = "max=1000"
	rangeRules = "min=-999999999,max=999999999"
)

// Claim is an insurance claim filed by a customer and reviewed by staff.
//
//nolint:gochecknoglobals // static schema
var Claim = &entity.Schema{
	Name:       ClaimEntity,
	Collection: "claims",
	Path:       "claims",
	Fields: []entity.Field{
		{Name: "claimAmount", Column: "claim_amount", Kind: entity.KindFloat, Nullable: true, Rules: rangeRules},
		{Name: "claimDate", Column: "claim_date", Kind: entity.KindTime, Nullable: true},
		{Name: "policyNumber", Column: "policy_number", Kind: entity.KindString, Nullable: true, Rules: textRules},
	},
	Relations: []entity.Relation{
		{Name: "customer", Target: CustomerEntity, Cardinality: entity.One, Column: "customer_id"},
		{Name: "reviews", Target: ReviewEntity, Cardinality: entity.Many, Inverse: "claim"},
	},
}

// Customer owns claims.
//
//nolint:gochecknoglobals // static schema
var Customer = &entity.Schema{
	Name:       CustomerEntity,
	Collection: "customers",
	Path:       "customers",
	Fields: []entity.Field{
		{Name: "email", Column: "email", Kind: entity.KindString, Nullable: true, Rules: "email,max=1000"},
		{Name: "firstName", Column: "first_name", Kind: entity.KindString, Nullable: true, Rules: textRules},
		{Name: "lastName", Column: "last_name", Kind: entity.KindString, Nullable: true, Rules: textRules},
	},
	Relations: []entity.Relation{
		{Name: "claims", Target: ClaimEntity, Cardinality: entity.Many, Inverse: "customer"},
	},
}

// Review is an assessment attached to a claim.
//
//nolint:gochecknoglobals // static schema
var Review = &entity.Schema{
	Name:       ReviewEntity,
	Collection: "reviews",
	Path:       "reviews",
	Fields: []entity.Field{
		{Name: "comments", Column: "comments", Kind: entity.KindString, Nullable: true, Rules: textRules},
		{Name: "rating", Column: "rating", Kind: entity.KindInt, Nullable: true, Rules: rangeRules},
		{Name: "remarks", Column: "remarks", Kind: entity.KindString, Nullable: true, Rules: textRules},
	},
	Relations: []entity.Relation{
		{Name: "claim", Target: ClaimEntity, Cardinality: entity.One, Column: "claim_id"},
	},
}

// User is an account of the service.
//
//nolint:gochecknoglobals // static schema
var User = &entity.Schema{
	Name:       UserEntity,
	Collection: "users",
	Path:       "users",
	Fields: []entity.Field{
		{
			Name: "username", Column: "username", Kind: entity.KindString,
			Required: true, Unique: true, Rules: "min=1,max=256",
		},
		{Name: "firstName", Column: "first_name", Kind: entity.KindString, Nullable: true, Rules: textRules},
		{Name: "lastName", Column: "last_name", Kind: entity.KindString, Nullable: true, Rules: textRules},
		{Name: "roles", Column: "roles", Kind: entity.KindStrings, Nullable: true, Rules: "dive,min=1,max=64"},
	},
}

// NewCatalog returns the catalog of all entities.
func NewCatalog() *entity.Catalog {
	return entity.MustCatalog(Claim, Customer, Review, User)
}

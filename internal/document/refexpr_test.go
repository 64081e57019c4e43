package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRefExpression(t *testing.T) {
	tests := []struct {
		expr  string
		left  Endpoint
		right Endpoint
	}{
		{
			expr:  "orders.user_id > users.id",
			left:  Endpoint{Table: "orders", Columns: []string{"user_id"}, Relation: RelationMany},
			right: Endpoint{Table: "users", Columns: []string{"id"}, Relation: RelationOne},
		},
		{
			expr:  "users.id < orders.user_id",
			left:  Endpoint{Table: "users", Columns: []string{"id"}, Relation: RelationOne},
			right: Endpoint{Table: "orders", Columns: []string{"user_id"}, Relation: RelationMany},
		},
		{
			expr:  "users.id - profiles.user_id",
			left:  Endpoint{Table: "users", Columns: []string{"id"}, Relation: RelationOne},
			right: Endpoint{Table: "profiles", Columns: []string{"user_id"}, Relation: RelationOne},
		},
		{
			expr:  "tags.id <> posts.id",
			left:  Endpoint{Table: "tags", Columns: []string{"id"}, Relation: RelationMany},
			right: Endpoint{Table: "posts", Columns: []string{"id"}, Relation: RelationMany},
		},
		{
			expr:  `sales.orders.(merchant_id, "country code")>merchants.(id, country_code)`,
			left:  Endpoint{Namespace: "sales", Table: "orders", Columns: []string{"merchant_id", "country code"}, Relation: RelationMany},
			right: Endpoint{Table: "merchants", Columns: []string{"id", "country_code"}, Relation: RelationOne},
		},
		{
			expr:  `"my-schema"."user-data".id > auth.users.id`,
			left:  Endpoint{Namespace: "my-schema", Table: "user-data", Columns: []string{"id"}, Relation: RelationMany},
			right: Endpoint{Namespace: "auth", Table: "users", Columns: []string{"id"}, Relation: RelationOne},
		},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			eps, err := ParseRefExpression(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.left, eps[0])
			assert.Equal(t, tt.right, eps[1])
		})
	}
}

func TestParseRefExpressionErrors(t *testing.T) {
	for _, expr := range []string{
		"orders.user_id users.id",
		"orders > users.id",
		"a.b.c.d > users.id",
		"orders.(a, b > users.id",
	} {
		_, err := ParseRefExpression(expr)
		assert.Error(t, err, expr)
	}
}

func TestFormatRefExpression(t *testing.T) {
	for _, expr := range []string{
		"orders.user_id > users.id",
		"users.id < orders.user_id",
		"users.id - profiles.user_id",
		"tags.id <> posts.id",
		"sales.orders.(merchant_id, country_code) > merchants.(id, country_code)",
	} {
		eps, err := ParseRefExpression(expr)
		require.NoError(t, err)
		assert.Equal(t, expr, FormatRefExpression(&Ref{Endpoints: eps}))
	}
}

func TestParseFieldType(t *testing.T) {
	tests := map[string]FieldType{
		"int":                      {Name: "int"},
		"varchar(255)":             {Name: "varchar", Args: "255"},
		"numeric( 10, 2 )":         {Name: "numeric", Args: "10, 2"},
		"character varying(20)":    {Name: "character varying", Args: "20"},
		"auth.status":              {Namespace: "auth", Name: "status"},
		"timestamp with time zone": {Name: "timestamp with time zone"},
		"int[]":                    {Name: "int[]"},
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseFieldType(in), in)
	}
}

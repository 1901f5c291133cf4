// Package graph exposes the copy-trading engine over the fixed GraphQL
// contract the frontend consumes. Field names, enum casing and shapes are
// part of the compatibility surface and must not drift.
package graph

import (
	"github.com/graphql-go/graphql"

	"copytrade-backend/internal/database"
)

var directionEnum = graphql.NewEnum(graphql.EnumConfig{
	Name: "TradeDirection",
	Values: graphql.EnumValueConfigMap{
		"LONG":  &graphql.EnumValueConfig{Value: "LONG"},
		"SHORT": &graphql.EnumValueConfig{Value: "SHORT"},
	},
})

var statusEnum = graphql.NewEnum(graphql.EnumConfig{
	Name: "TradeStatus",
	Values: graphql.EnumValueConfigMap{
		"OPEN":   &graphql.EnumValueConfig{Value: "OPEN"},
		"CLOSED": &graphql.EnumValueConfig{Value: "CLOSED"},
	},
})

var userType = graphql.NewObject(graphql.ObjectConfig{
	Name: "User",
	Fields: graphql.Fields{
		"id": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.User).ID, nil
			},
		},
		"username": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.User).Username, nil
			},
		},
		"balance": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Float),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.User).Balance, nil
			},
		},
		"totalPnl": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Float),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.User).TotalPnl, nil
			},
		},
		"winRate": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Float),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.User).WinRate(), nil
			},
		},
		"followersCount": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Int),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.User).FollowersCount, nil
			},
		},
		"isTrader": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Boolean),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.User).IsTrader, nil
			},
		},
		"createdAt": &graphql.Field{
			Type: graphql.NewNonNull(graphql.DateTime),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.User).CreatedAt, nil
			},
		},
	},
})

var tradeType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Trade",
	Fields: graphql.Fields{
		"id": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.Trade).ID, nil
			},
		},
		"traderId": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.Trade).TraderID, nil
			},
		},
		"symbol": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.Trade).Symbol, nil
			},
		},
		"direction": &graphql.Field{
			Type: graphql.NewNonNull(directionEnum),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return string(p.Source.(*database.Trade).Direction), nil
			},
		},
		"entryPrice": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Float),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.Trade).EntryPrice, nil
			},
		},
		"exitPrice": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if v := p.Source.(*database.Trade).ExitPrice; v != nil {
					return *v, nil
				}
				return nil, nil
			},
		},
		"quantity": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Float),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.Trade).Quantity, nil
			},
		},
		"pnl": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if v := p.Source.(*database.Trade).Pnl; v != nil {
					return *v, nil
				}
				return nil, nil
			},
		},
		"status": &graphql.Field{
			Type: graphql.NewNonNull(statusEnum),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return string(p.Source.(*database.Trade).Status), nil
			},
		},
		"createdAt": &graphql.Field{
			Type: graphql.NewNonNull(graphql.DateTime),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.Trade).CreatedAt, nil
			},
		},
		"closedAt": &graphql.Field{
			Type: graphql.DateTime,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if v := p.Source.(*database.Trade).ClosedAt; v != nil {
					return *v, nil
				}
				return nil, nil
			},
		},
	},
})

var copyRelationType = graphql.NewObject(graphql.ObjectConfig{
	Name: "CopyRelation",
	Fields: graphql.Fields{
		"id": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.CopyRelation).ID, nil
			},
		},
		"followerId": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.CopyRelation).FollowerID, nil
			},
		},
		"traderId": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.CopyRelation).TraderID, nil
			},
		},
		"copyRatio": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Float),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.CopyRelation).CopyRatio, nil
			},
		},
		"active": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Boolean),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.CopyRelation).Active, nil
			},
		},
		"createdAt": &graphql.Field{
			Type: graphql.NewNonNull(graphql.DateTime),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.CopyRelation).CreatedAt, nil
			},
		},
	},
})

var copiedTradeType = graphql.NewObject(graphql.ObjectConfig{
	Name: "CopiedTrade",
	Fields: graphql.Fields{
		"id": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.CopiedTrade).ID, nil
			},
		},
		"originalTradeId": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.CopiedTrade).OriginalTradeID, nil
			},
		},
		"followerId": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.CopiedTrade).FollowerID, nil
			},
		},
		"quantity": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Float),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*database.CopiedTrade).Quantity, nil
			},
		},
		"pnl": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if v := p.Source.(*database.CopiedTrade).Pnl; v != nil {
					return *v, nil
				}
				return nil, nil
			},
		},
		"status": &graphql.Field{
			Type: graphql.NewNonNull(statusEnum),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return string(p.Source.(*database.CopiedTrade).Status), nil
			},
		},
	},
})

var createTradeInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "CreateTradeInput",
	Fields: graphql.InputObjectConfigFieldMap{
		"traderId":   &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
		"symbol":     &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		"direction":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(directionEnum)},
		"entryPrice": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
		"quantity":   &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
	},
})

var copyTraderInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "CopyTraderInput",
	Fields: graphql.InputObjectConfigFieldMap{
		"followerId": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
		"traderId":   &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
		"copyRatio":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
	},
})

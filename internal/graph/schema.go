package graph

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"

	"copytrade-backend/internal/database"
	"copytrade-backend/internal/events"
	"copytrade-backend/internal/lifecycle"
	"copytrade-backend/internal/registry"
)

// Resolver bundles the services the schema resolves against.
type Resolver struct {
	Store     database.Store
	Registry  *registry.Service
	Lifecycle *lifecycle.Controller
	EventBus  *events.EventBus

	// StartingBalance is the balance a newly registered user begins with.
	StartingBalance float64
}

// NewSchema builds the executable GraphQL schema.
func NewSchema(r *Resolver) (graphql.Schema, error) {
	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"traders": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(userType))),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return r.Store.ListTraders(p.Context)
				},
			},
			"users": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(userType))),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return r.Store.ListUsers(p.Context)
				},
			},
			"user": &graphql.Field{
				Type: userType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					user, err := r.Store.GetUser(p.Context, p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					if user == nil {
						return nil, nil
					}
					return user, nil
				},
			},
			"trades": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(tradeType))),
				Args: graphql.FieldConfigArgument{
					"traderId": &graphql.ArgumentConfig{Type: graphql.ID},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					traderID, _ := p.Args["traderId"].(string)
					return r.Store.ListTrades(p.Context, traderID)
				},
			},
			"openTrades": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(tradeType))),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return r.Store.ListOpenTrades(p.Context)
				},
			},
			"myCopyRelations": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(copyRelationType))),
				Args: graphql.FieldConfigArgument{
					"followerId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return r.Registry.ListForFollower(p.Context, p.Args["followerId"].(string))
				},
			},
			"myCopiedTrades": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(copiedTradeType))),
				Args: graphql.FieldConfigArgument{
					"followerId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return r.Store.ListCopiedTradesByFollower(p.Context, p.Args["followerId"].(string))
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createTrade": &graphql.Field{
				Type: graphql.NewNonNull(tradeType),
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(createTradeInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					input, ok := p.Args["input"].(map[string]interface{})
					if !ok {
						return nil, fmt.Errorf("invalid input")
					}
					return r.Lifecycle.OpenTrade(
						p.Context,
						input["traderId"].(string),
						input["symbol"].(string),
						database.TradeDirection(input["direction"].(string)),
						input["entryPrice"].(float64),
						input["quantity"].(float64),
					)
				},
			},
			"closeTrade": &graphql.Field{
				Type: graphql.NewNonNull(tradeType),
				Args: graphql.FieldConfigArgument{
					"tradeId":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"exitPrice": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return r.Lifecycle.CloseTrade(
						p.Context,
						p.Args["tradeId"].(string),
						p.Args["exitPrice"].(float64),
					)
				},
			},
			"copyTrader": &graphql.Field{
				Type: graphql.NewNonNull(copyRelationType),
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(copyTraderInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					input, ok := p.Args["input"].(map[string]interface{})
					if !ok {
						return nil, fmt.Errorf("invalid input")
					}
					return r.Registry.Create(
						p.Context,
						input["followerId"].(string),
						input["traderId"].(string),
						input["copyRatio"].(float64),
					)
				},
			},
			"stopCopying": &graphql.Field{
				Type: graphql.NewNonNull(copyRelationType),
				Args: graphql.FieldConfigArgument{
					"relationId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return r.Registry.Deactivate(p.Context, p.Args["relationId"].(string))
				},
			},
			"registerUser": &graphql.Field{
				Type: graphql.NewNonNull(userType),
				Args: graphql.FieldConfigArgument{
					"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"isTrader": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Boolean)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					user := &database.User{
						ID:        uuid.New().String(),
						Username:  p.Args["username"].(string),
						Balance:   r.StartingBalance,
						IsTrader:  p.Args["isTrader"].(bool),
						CreatedAt: time.Now(),
					}
					if err := r.Store.CreateUser(p.Context, user); err != nil {
						return nil, err
					}
					r.EventBus.PublishUserRegistered(user)
					return user, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// Package main Clinicore Order Engine API
//
//	@title						Clinicore Order Engine API
//	@version					1.0
//	@description				Transactional order, dispensing and invoice lifecycle API for the clinic suite.
//
//	@host						localhost:8080
//	@BasePath					/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"
//
//	@tag.name					Ledger
//	@tag.description			Stock and receivable resource endpoints
//
//	@tag.name					ShopOrders
//	@tag.description			Retail shop order lifecycle endpoints
//
//	@tag.name					DispensingOrders
//	@tag.description			Prescription dispensing endpoints
//
//	@tag.name					Invoices
//	@tag.description			Invoice and payment settlement endpoints
package main

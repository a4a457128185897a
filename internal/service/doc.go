// Package service contains the transfer orchestrator and account services.
package service

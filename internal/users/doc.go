// Package users manages accounts, subscription plans, and plan-based usage limits.
package users

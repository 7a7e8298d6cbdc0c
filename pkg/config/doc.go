// Package config loads and validates application configuration from
// DATAROOM_* environment variables, with sensible defaults for local runs.
//
// Server settings:
//
//	DATAROOM_HOST="0.0.0.0"
//	DATAROOM_PORT="8080"
//	DATAROOM_HEALTH_PORT="9090"
//	DATAROOM_READ_TIMEOUT="15s"
//	DATAROOM_WRITE_TIMEOUT="60s"
//
// Store settings:
//
//	DATAROOM_STORE_TYPE="postgres"  # memory, postgres
//	DATAROOM_POSTGRES_URL="postgres://localhost/dataroom?sslmode=disable"
//
// File storage settings:
//
//	DATAROOM_FILES_TYPE="s3"  # local, s3
//	DATAROOM_FILES_ROOT="./data/files"
//	DATAROOM_S3_BUCKET="dataroom-files"
//	DATAROOM_S3_REGION="us-east-1"
//
// Notification bridge (disabled when unset):
//
//	DATAROOM_REDIS_URL="localhost:6379"
//
// Auth settings:
//
//	DATAROOM_AUTH_TYPE="oidc"  # static, oidc
//	DATAROOM_OIDC_ISSUER="https://tenant.auth0.com/"
//	DATAROOM_OIDC_CLIENT_ID="..."
//
// Resource definitions:
//
//	DATAROOM_DEFINITIONS_DIR="./definitions"
//	DATAROOM_SCHEMAS_DIR="./schemas"
package config

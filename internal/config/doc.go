// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} and ${VAR:-fallback} syntax for
// environment variable interpolation, so secrets such as the API key and
// token can stay out of the file. Bare $VAR is not expanded. Unknown keys
// are rejected when decoding:
//
//	api:
//	  api_key: ${FEEDS_API_KEY}
//	auth:
//	  token: ${FEEDS_USER_TOKEN}
//	user:
//	  id: alice
//	watch:
//	  feeds: ["user:alice", "timeline:alice"]
package config

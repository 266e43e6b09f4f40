// Package httpapp provides the HTTP server for Vibechecker.
//
//	@title						Vibechecker API
//	@version					1.0
//	@description				Sentiment scoring and per-client word-list moderation.
//	@description
//	@description				## Authentication Flow
//	@description
//	@description				All analysis and moderation endpoints require a bearer token.
//	@description
//	@description				### Step 1: Register
//	@description				```bash
//	@description				curl -X POST /register -d '{"name":"my-app"}'
//	@description				# Returns: {"client_id":"app_...","client_secret":"..."}
//	@description				```
//	@description				The client_secret is shown exactly once. Store it.
//	@description
//	@description				### Step 2: Get a Math Challenge
//	@description				```bash
//	@description				curl /math_challenge
//	@description				# Returns: {"challenge_id":"...","question":"17+4=?"}
//	@description				```
//	@description
//	@description				### Step 3: Exchange for a Token
//	@description				Send Basic credentials plus the solved challenge.
//	@description				```bash
//	@description				curl -X POST /oauth/token -u CLIENT_ID:CLIENT_SECRET \
//	@description				  -d 'challenge_id=...&challenge_answer=21'
//	@description				# Returns: {"access_token":"...","token_type":"Bearer","expires_in":3600}
//	@description				```
//	@description
//	@description				### Step 4: Call the API
//	@description				```bash
//	@description				curl -X POST /detect -H "Authorization: Bearer TOKEN" -d '{"text":"..."}'
//	@description				```
//
//	@contact.name				Vibechecker
//	@license.name				MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token from /oauth/token
//
//	@tag.name					Authentication
//	@tag.description			Registration, math challenges, and token issuance.
//
//	@tag.name					Moderation
//	@tag.description			Per-client blacklist/whitelist management and detection.
//
//	@tag.name					Vibes
//	@tag.description			Sentiment scoring and per-client history.
package httpapp

package config

// SampleYAML is a commented configuration documenting every option with its
// default.
const SampleYAML = `# docharvest configuration (YAML)
# All fields are optional. Command-line flags override config values.
# The transformation bearer token is read from DOCHARVEST_TRANSFORM_TOKEN
# (a .env file in the working directory is loaded automatically).

# Seed URLs; each one becomes a knowledge base.
# seeds:
#   - https://petstore.swagger.io/

# CSV (with a url column) or NDJSON file of URLs to process.
# url-file: urls.csv

# Where knowledge bases and run summaries are written.
output-dir: .

# Plan files without writing them.
# dry-run: false

# Write into non-empty knowledge base directories.
# force: false

# debug, info, warn or error.
log-level: info

# Serve Prometheus metrics while running, e.g. ":9090".
# metrics-addr: ""

discovery:
  # Maximum URLs per seed; 0 means no limit.
  max-pages: 0
  # Only process listed URLs on the seed's host.
  same-domain: false

fetch:
  # Reader proxy prefixed to every page URL.
  # reader-base: https://r.jina.ai/
  timeout: 60s
  dial-timeout: 30s
  user-agent: docharvest/1.0
  max-bytes: 10485760

detect:
  # Let URLs guessed from the page path alone mark a page as API documentation.
  trust-guessed-candidates: false
  max-candidates: 12
  spec-timeout: 10s
  # Pacing of spec candidate fetches per host.
  host-rps: 2
  host-burst: 1

limits:
  workers: 20
  requests-per-window: 20
  window: 1m
  transform-concurrency: 5

retry:
  stage-retries: 2
  stage-delay: 2s
  transform-retries: 2
  transform-base: 1s

transform:
  # Leave empty to keep page content as-is.
  # endpoint: https://transform.internal/v1/markdown
  timeout: 120s
`

package db

// SchemaSQL contains the database schema initialization SQL.
// The chunk embedding index dimension is injected at init time so the
// schema always matches the configured embedding model.
const SchemaSQL = `
    -- ==========================================================================
    -- SITE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS site SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON site TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON site TYPE string;
    DEFINE FIELD IF NOT EXISTS base_url ON site TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON site TYPE string DEFAULT 'NEW';
    DEFINE FIELD IF NOT EXISTS crawl_config ON site TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS last_crawled_at ON site TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS created_at ON site TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON site TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS site_workspace ON site FIELDS workspace_id;

    -- ==========================================================================
    -- CRAWL_RUN TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS crawl_run SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON crawl_run TYPE string;
    DEFINE FIELD IF NOT EXISTS site_id ON crawl_run TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON crawl_run TYPE string DEFAULT 'QUEUED';
    DEFINE FIELD IF NOT EXISTS pages_discovered ON crawl_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS pages_fetched ON crawl_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS pages_embedded ON crawl_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS pages_errored ON crawl_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS error_summary ON crawl_run TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS started_at ON crawl_run TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS finished_at ON crawl_run TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS created_at ON crawl_run TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS crawl_run_site ON crawl_run FIELDS site_id;

    -- ==========================================================================
    -- PAGE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS page SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON page TYPE string;
    DEFINE FIELD IF NOT EXISTS site_id ON page TYPE string;
    DEFINE FIELD IF NOT EXISTS url ON page TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON page TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS raw_content ON page TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS content_hash ON page TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS status ON page TYPE string DEFAULT 'NEW';
    DEFINE FIELD IF NOT EXISTS http_status ON page TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS mime_type ON page TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS error ON page TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS last_crawled_at ON page TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS created_at ON page TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON page TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS page_site ON page FIELDS site_id;
    DEFINE INDEX IF NOT EXISTS page_site_url ON page FIELDS site_id, url UNIQUE;

    -- ==========================================================================
    -- CHUNK TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS chunk SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS site_id ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS page_id ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS url ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON chunk TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS content ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS token_count ON chunk TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS heading_path ON chunk TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS embedding ON chunk TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS created_at ON chunk TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS chunk_site ON chunk FIELDS site_id;
    DEFINE INDEX IF NOT EXISTS chunk_page ON chunk FIELDS page_id;
    DEFINE INDEX IF NOT EXISTS chunk_embedding ON chunk FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS chunk_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS chunk_content_ft ON chunk FIELDS content FULLTEXT ANALYZER chunk_analyzer BM25;

    -- ==========================================================================
    -- CONVERSATION / MESSAGE TABLES
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS site_id ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS visitor_id ON conversation TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON conversation TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS conversation_site ON conversation FIELDS site_id;

    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS conversation_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS citations ON message TYPE option<array<object>>;
    REMOVE FIELD IF EXISTS citations.* ON message;
    DEFINE FIELD citations.* ON message TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS prompt_tokens ON message TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS completion_tokens ON message TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS message_conversation ON message FIELDS conversation_id;

    -- ==========================================================================
    -- DAILY_USAGE TABLE (billing counters, consumed externally)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS daily_usage SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON daily_usage TYPE string;
    DEFINE FIELD IF NOT EXISTS site_id ON daily_usage TYPE string;
    DEFINE FIELD IF NOT EXISTS day ON daily_usage TYPE string;
    DEFINE FIELD IF NOT EXISTS prompt_tokens ON daily_usage TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS completion_tokens ON daily_usage TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS embedding_tokens ON daily_usage TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS requests ON daily_usage TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS crawl_pages ON daily_usage TYPE int DEFAULT 0;

    DEFINE INDEX IF NOT EXISTS daily_usage_key ON daily_usage FIELDS workspace_id, site_id, day UNIQUE;
`

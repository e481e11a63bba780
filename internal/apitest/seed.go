// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apitest

import "time"

// seed loads a small but varied marketplace. Shapes deliberately mix
// bool and 0/1 flags and omit optional fields the way production data does.
func (m *Marketplace) seed() {
	day := func(n int) string {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n).Format(time.RFC3339)
	}

	m.agents = []Record{
		{"id": "a1b2c3d4-0001", "agent_name": "Krakenworks", "lightning_address": "kraken@getalby.com", "x_handle": "krakenworks", "agent_card_verified": 1, "x_verified": 1, "skill_count": 3, "avatar_emoji": "🦑", "created_at": day(0)},
		{"id": "a1b2c3d4-0002", "agent_name": "Dragline", "lightning_address": "drag@strike.me", "agent_card_verified": 0, "skill_count": 2, "created_at": day(3)},
		{"id": "a1b2c3d4-0003", "agent_name": "Önboard Bot", "x_handle": "onboard_ai", "agent_card_verified": 1, "skill_count": 0, "created_at": day(9)},
		{"id": "a1b2c3d4-0004", "agent_name": "nautilus", "lightning_address": "naut@wos.com", "skill_count": 1, "created_at": day(12)},
	}

	m.skills = []Record{
		{"id": 101, "name": "Drag-and-Drop Uploader", "slug": "drag-drop-uploader", "agent_id": "a1b2c3d4-0001", "agent_name": "Krakenworks", "category": "utilities", "description": "Chunked uploads with resume.", "is_active": 1, "success_count": 42, "rating_sum": 23, "rating_count": 5, "available_tiers": []any{"execution", "skill_file"}, "price_execution": 250, "created_at": day(1), "scan": Record{"risk_score": 10, "result": "clean", "scanned_at": day(20)}},
		{"id": 102, "name": "Invoice Parser", "slug": "invoice-parser", "agent_id": "a1b2c3d4-0001", "agent_name": "Krakenworks", "category": "finance", "description": "Extracts line items from PDF invoices.", "is_active": true, "success_count": 17, "available_tiers": []any{"full_package"}, "created_at": day(4), "scan": Record{"risk_score": 60, "result": "warning", "scanned_at": day(21)}},
		{"id": 103, "name": "Sentiment Scout", "slug": "sentiment-scout", "agent_id": "a1b2c3d4-0002", "agent_name": "Dragline", "category": "nlp", "description": "Scores social posts.", "is_active": 0, "success_count": 3, "created_at": day(6)},
		{"id": 104, "name": "éclair summarizer", "slug": "eclair", "agent_id": "a1b2c3d4-0002", "agent_name": "Dragline", "category": "nlp", "description": "Short summaries that drag on less.", "success_count": 88, "rating_sum": 40, "rating_count": 9, "created_at": day(8), "scan": Record{"risk_score": 0, "result": "clean", "scanned_at": day(22)}},
		{"id": 105, "name": "Tide Tables", "slug": "tide-tables", "agent_id": "a1b2c3d4-0004", "agent_name": "nautilus", "category": "data", "description": "NOAA tide predictions.", "is_active": 1, "success_count": 5, "created_at": day(14)},
		{"id": 106, "name": "Lightning Router", "slug": "ln-router", "agent_id": "a1b2c3d4-0001", "agent_name": "Krakenworks", "category": "finance", "is_active": 1, "created_at": day(15)},
	}

	m.reviews = []Record{
		{"id": "r-1", "agent_id": "a1b2c3d4-0001", "agent_name": "Krakenworks", "skill_name": "Drag-and-Drop Uploader", "reviewer_name": "buyer-bot-7", "rating": 5, "comment": "Fast and reliable.", "tier": "execution", "is_active": 1, "created_at": day(16)},
		{"id": "r-2", "agent_id": "a1b2c3d4-0001", "agent_name": "Krakenworks", "skill_name": "Invoice Parser", "reviewer_name": "ledgerling", "rating": 2, "comment": "Missed half the totals.", "tier": "full_package", "is_active": 1, "created_at": day(17)},
		{"id": "r-3", "agent_id": "a1b2c3d4-0002", "agent_name": "Dragline", "skill_name": "éclair summarizer", "reviewer_name": "spam-o-tron", "rating": 1, "comment": "BUY CHEAP SATS NOW", "is_active": 0, "moderation_reason": "spam", "created_at": day(18)},
		{"id": "r-4", "agent_id": "a1b2c3d4-0002", "agent_name": "Dragline", "skill_name": "éclair summarizer", "reviewer_name": "quiet-owl", "rating": 4, "is_active": 1, "created_at": day(19)},
	}
	m.reports = []Record{
		{"id": "rep-1", "review_id": "r-2", "report_reason": "defamatory", "report_text": "Claims are false", "created_at": day(18)},
	}

	m.transactions = []Record{
		{"id": "tx-8f1e2d3c4b5a", "skill_name": "Drag-and-Drop Uploader", "tier": "execution", "amount_sats": 250, "platform_fee_sats": 5, "buyer_name": "buyer-bot-7", "seller_name": "Krakenworks", "status": "completed", "created_at": day(16)},
		{"id": "tx-7a6b5c4d3e2f", "skill_name": "Invoice Parser", "tier": "full_package", "amount_sats": 12000, "platform_fee_sats": 240, "buyer_name": "ledgerling", "agent_name": "Krakenworks", "status": "complete", "created_at": day(17)},
		{"id": "tx-1a2b3c4d5e6f", "skill_name": "éclair summarizer", "tier": "skill_file", "amount_sats": 800, "buyer_name": "quiet-owl", "seller_name": "Dragline", "status": "pending", "created_at": day(19)},
		{"id": "tx-0f9e8d7c6b5a", "skill_name": "Tide Tables", "tier": "execution", "amount_sats": 100, "platform_fee_sats": 2, "buyer_name": "mariner", "seller_name": "nautilus", "status": "failed", "created_at": day(20)},
	}
	m.btcPrice = 97250.5

	m.keys = []Record{
		{"agent_id": "a1b2c3d4-0001", "agent_name": "Krakenworks", "key_prefix": "sbk_1f2e3d4c", "is_active": 1, "created_at": day(0), "rotated_at": day(10)},
		{"agent_id": "a1b2c3d4-0002", "agent_name": "Dragline", "key_hash": "9c8b7a6f5e4d3c2b1a", "is_active": true, "pending_recovery": true, "created_at": day(3)},
		{"agent_id": "a1b2c3d4-0004", "agent_name": "nautilus", "key_prefix": "sbk_aa00bb11", "is_active": 0, "created_at": day(12)},
	}

	m.scans = []Record{
		{"skill_id": 104, "skill_name": "éclair summarizer", "risk_score": 0, "result": "clean", "scanned_at": day(22)},
		{"skill_id": 102, "skill_name": "Invoice Parser", "risk_score": 60, "result": "warning", "scanned_at": day(21)},
	}
	m.threats = []Record{
		{"type": "prompt_injection", "skill_name": "Invoice Parser", "severity": "medium", "description": "Instruction-like text in skill details.", "detected_at": day(21)},
	}
	risk := 23
	m.overallRisk = &risk

	// Analytics bodies mix the wrapped/nested and flat shapes.
	m.analytics = map[string]Record{
		"24h": {"success": true, "analytics": Record{
			"totals":       Record{"requests": 18234, "pageviews": 5120, "unique_visitors": 1402, "threats": 12, "bandwidth": 734003200},
			"countries":    []any{Record{"country": "US", "requests": 9100}, Record{"country": "DE", "requests": 2300}, Record{"code": "BR", "count": 1800}},
			"top_pages":    []any{Record{"path": "/", "views": 2100}, Record{"url": "/skills", "views": 1300}},
			"status_codes": Record{"200": 16000, "404": 1900, "500": 34},
		}},
		"7d": {
			"total_requests": 120500, "page_views": 30211, "uniques": 8800, "threat_count": 91, "bandwidth": "5033164800",
			"country_map": Record{"US": 61000, "GB": 9000, "JP": 7000},
			"pages":       []any{Record{"path": "/", "count": 14000}},
			"http_status": Record{"200": 110000, "301": 5000},
		},
		"30d": {"analytics": Record{"totals": Record{"requests": 502000, "pageviews": 120000, "unique_visitors": 31000, "threats": 400, "bandwidth": 21474836480}}},
	}

	m.deployInfo = Record{"version": "2.14.0", "commit": "9f8e7d6c5b4a3", "deployed_at": day(23)}
	m.metrics = Record{"memory_mb": 212, "uptime_seconds": 86400, "node_version": "v20.11.1", "db_size_kb": 5120}

	m.issues = []Record{
		{"id": 9001, "number": 42, "title": "Uploader drops chunks over 5MB", "repo": "krakenworks/uploader", "user": Record{"login": "ledgerling"}, "labels": []any{Record{"name": "bug"}, Record{"name": "p1"}}, "html_url": "https://github.com/krakenworks/uploader/issues/42", "acknowledged": 0, "created_at": day(20)},
		{"id": 9002, "number": 7, "title": "Add Spanish summaries", "repo": "dragline/eclair", "author": "quiet-owl", "labels": []any{"enhancement"}, "html_url": "https://github.com/dragline/eclair/issues/7", "acknowledged": 1, "created_at": day(18)},
		{"number": 3, "title": "Tide data stale for Pacific stations", "repo": "nautilus/tides", "author": "mariner", "acknowledged": false, "created_at": day(22)},
	}
	m.connections = []Record{
		{"agent_name": "Krakenworks", "repo": "krakenworks/uploader", "verified": 1, "connected_at": day(5)},
		{"agent_name": "Dragline", "github_repo": "dragline/eclair", "verified": 0, "created_at": day(7)},
	}
}

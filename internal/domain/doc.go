// Package domain contains the durable entities of the knowledge base:
// customers, their knowledge files and scraped pages, the chunks indexed
// from them, and chat conversations. Entities carry their own validation
// and are independent of storage and transport.
package domain

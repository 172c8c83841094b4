package pg

// Schema: DDL по шагам; ключи задают порядок применения.
func Schema() map[string]string {
	return map[string]string{
		"010_users": `
create table if not exists users (
	id            bigserial primary key,
	username      text not null unique,
	email         text not null default '',
	full_name     text not null default '',
	password_hash text not null,
	role          text not null check (role in ('ADMIN', 'USER')),
	enabled       boolean not null default true,
	last_login_at timestamp with time zone,
	created_at    timestamp with time zone not null,
	updated_at    timestamp with time zone not null,
	created_by    text not null default '',
	updated_by    text not null default ''
)`,
		"011_users_email": `
create unique index if not exists users_email_uq on users (lower(email)) where email <> ''`,

		"020_organization_nodes": `
create table if not exists organization_nodes (
	id          bigserial primary key,
	name        text not null check (name <> ''),
	description text,
	type        text not null check (type in ('DEPARTMENT', 'TEAM', 'BUSINESS_DIRECTION', 'MODULE')),
	parent_id   bigint references organization_nodes (id) on delete restrict,
	sort_order  integer not null default 0,
	created_at  timestamp with time zone not null,
	updated_at  timestamp with time zone not null,
	created_by  text not null default '',
	updated_by  text not null default ''
)`,
		// корни группируются по parent_id = 0; bigserial начинается с 1
		"021_organization_nodes_sibling": `
create unique index if not exists organization_nodes_sibling_uq on organization_nodes (coalesce(parent_id, 0), name)`,
		"022_organization_nodes_parent": `
create index if not exists organization_nodes_parent_idx on organization_nodes (parent_id)`,

		"030_data_files": `
create table if not exists data_files (
	id                   bigserial primary key,
	name                 text not null check (name <> ''),
	description          text,
	file_hash            char(32) not null,
	organization_node_id bigint not null references organization_nodes (id) on delete restrict,
	owner_id             bigint not null references users (id),
	access_level         text not null check (access_level in ('PRIVATE', 'PUBLIC')),
	column_definitions   jsonb not null default '[]'::jsonb,
	data_rows            jsonb not null default '[]'::jsonb,
	row_count            integer not null default 0,
	column_count         integer not null default 0,
	created_at           timestamp with time zone not null,
	updated_at           timestamp with time zone not null,
	created_by           text not null default '',
	updated_by           text not null default '',
	unique (organization_node_id, name)
)`,
		"031_data_files_hash": `
create index if not exists data_files_hash_idx on data_files (file_hash)`,
		"032_data_files_owner": `
create index if not exists data_files_owner_idx on data_files (owner_id)`,
		"033_data_files_columns": `
create index if not exists data_files_columns_gin on data_files using gin (column_definitions jsonb_path_ops)`,
	}
}

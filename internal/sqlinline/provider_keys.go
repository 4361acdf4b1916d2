package sqlinline

// Provider API keys managed outside the environment.

const QEnsureProviderKeys = `--sql 2b0f7c1e-5f4a-4d8e-9a57-61c3a0f4b9d2
create table if not exists provider_keys (
    provider   text primary key,
    api_key    text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

const QSelectProviderKey = `--sql 8a8e0d52-7f5d-4f21-8b7d-f7d4b821eed7
select api_key
from provider_keys
where provider = $1::text
limit 1;
`

const QUpsertProviderKey = `--sql 6d4f5660-0f7c-4f73-a1f3-9ab6d5e6c7a3
insert into provider_keys (provider, api_key, properties, created_at, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    api_key = excluded.api_key,
    properties = excluded.properties,
    updated_at = now();
`

const QDeleteProviderKey = `--sql c4d9a6b0-3e1f-4a7c-8d25-7b9e0f6a1c34
delete from provider_keys
where provider = $1::text;
`

package sqlinline

// Durable run queue and step log for the generation pipeline.

const QEnsurePipelineRuns = `--sql 0390d38e-c53d-4bea-bd0f-462e0ba0f1e3
create table if not exists pipeline_runs (
    job_id       text primary key,
    request      jsonb not null,
    status       text not null default 'QUEUED',
    attempt      integer not null default 0,
    not_before   timestamptz not null default now(),
    leased_until timestamptz,
    last_error   text not null default '',
    created_at   timestamptz not null default now(),
    updated_at   timestamptz not null default now()
);
`

const QEnsurePipelineSteps = `--sql 4f3cdf38-0c8f-4f90-934c-3030007742cf
create table if not exists pipeline_steps (
    job_id     text not null,
    step       text not null,
    result     jsonb not null,
    created_at timestamptz not null default now(),
    primary key (job_id, step)
);
`

const QEnqueueRun = `--sql f179de6f-78d3-4605-b8f3-062200c77e47
insert into pipeline_runs (job_id, request, status, attempt, not_before)
values ($1, $2, 'QUEUED', 0, $3)
on conflict (job_id) do nothing;
`

// QClaimRun also reclaims RUNNING rows whose lease expired so a crashed
// worker's run is picked up again.
const QClaimRun = `--sql 75be1fe6-7bfa-456f-9537-bbc12ea798bc
with next_run as (
    select job_id
    from pipeline_runs
    where (status = 'QUEUED' and not_before <= now())
       or (status = 'RUNNING' and leased_until < now())
    order by not_before asc
    for update skip locked
    limit 1
),
updated as (
    update pipeline_runs
    set status = 'RUNNING',
        attempt = attempt + 1,
        leased_until = now() + make_interval(secs => $1),
        updated_at = now()
    where job_id in (select job_id from next_run)
    returning job_id, request, attempt, not_before
)
select * from updated;
`

const QRetryRun = `--sql 407c36e5-12a8-4bee-880b-7b4bbf1e2e6b
update pipeline_runs
set status = 'QUEUED',
    not_before = now() + make_interval(secs => $2),
    leased_until = null,
    last_error = $3,
    updated_at = now()
where job_id = $1;
`

const QCompleteRun = `--sql 962e0077-578b-4c05-b32d-e8282c5e7dd5
update pipeline_runs
set status = 'DONE', leased_until = null, updated_at = now()
where job_id = $1;
`

const QDeadRun = `--sql a3fd1add-4820-45dc-b3c7-8d87faa0e50c
update pipeline_runs
set status = 'DEAD', leased_until = null, last_error = $2, updated_at = now()
where job_id = $1;
`

const QLoadStep = `--sql de7ca639-5333-4b3a-9e50-1130dcace61d
select result from pipeline_steps where job_id = $1 and step = $2;
`

// First write wins; a replayed step never overwrites its recorded result.
const QSaveStep = `--sql 2f8abc07-cb45-4bb8-ad9c-a4522f84cf0f
insert into pipeline_steps (job_id, step, result)
values ($1, $2, $3)
on conflict (job_id, step) do nothing;
`

const QClearSteps = `--sql d4802a58-8b2c-4865-b035-890872b58401
delete from pipeline_steps where job_id = $1;
`

const QPruneRuns = `--sql 1421eff0-4a5f-49a4-befc-5f7d5d7cea4d
delete from pipeline_runs
where status in ('DONE', 'DEAD')
  and updated_at < now() - make_interval(secs => $1);
`

// QPruneSteps keeps checkpoints of runs that can still be claimed.
const QPruneSteps = `--sql d6fe6105-59e0-4865-87b2-491702c156e0
delete from pipeline_steps s
where s.created_at < now() - make_interval(secs => $1)
  and not exists (
      select 1 from pipeline_runs r
      where r.job_id = s.job_id and r.status in ('QUEUED', 'RUNNING')
  );
`

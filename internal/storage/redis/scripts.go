package redis

const (
	// pushHistoryScript prepends a calibration entry and trims the list
	pushHistoryScript = `
local history_key = KEYS[1]     -- puttstep:calibration:history:{subjectID}

local entry = ARGV[1]
local limit = tonumber(ARGV[2])

redis.call('LPUSH', history_key, entry)
if limit > 0 then
  redis.call('LTRIM', history_key, 0, limit - 1)
end

return redis.call('LLEN', history_key)
`

	// addMeasurementScript stores a measurement and maintains the time
	// indexes, moving it between subject indexes if it is re-added
	addMeasurementScript = `
local measurement_key = KEYS[1] -- puttstep:measurement:{id}
local all_index = KEYS[2]       -- puttstep:measurements
local subject_index = KEYS[3]   -- puttstep:measurements:subject:{subjectID}
local old_prefix = KEYS[4]      -- puttstep:measurements:subject:

local id = ARGV[1]
local subject_id = ARGV[2]
local score = ARGV[3]
local data = ARGV[4]

local old_subject = redis.call('HGET', measurement_key, 'subject_id')
if old_subject and old_subject ~= subject_id then
  redis.call('ZREM', old_prefix .. old_subject, id)
end

redis.call('HSET', measurement_key, 'subject_id', subject_id, 'data', data)
redis.call('ZADD', all_index, score, id)
redis.call('ZADD', subject_index, score, id)

return 'OK'
`

	// deleteMeasurementScript removes a measurement and its index entries
	deleteMeasurementScript = `
local measurement_key = KEYS[1] -- puttstep:measurement:{id}
local all_index = KEYS[2]       -- puttstep:measurements
local subject_prefix = KEYS[3]  -- puttstep:measurements:subject:

local id = ARGV[1]

local subject_id = redis.call('HGET', measurement_key, 'subject_id')
if not subject_id then
  return 0
end

redis.call('DEL', measurement_key)
redis.call('ZREM', all_index, id)
redis.call('ZREM', subject_prefix .. subject_id, id)

return 1
`
)
